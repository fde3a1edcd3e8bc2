// Package logging はzerologの初期化とginのリクエストログを提供する
package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel はログレベルを上書きする環境変数
const EnvLogLevel = "OPENSAUCE_LOG_LEVEL"

var configureOnce sync.Once

// Init はグローバルロガーを設定して返す
func Init(app string) zerolog.Logger {
	configureOnce.Do(func() {
		configure(app, zerolog.InfoLevel, true)
	})
	return log.Logger
}

// ConfigureTests はテスト用にタイムスタンプなし・debugレベルで設定する
func ConfigureTests() {
	configureOnce.Do(func() {
		configure("test", zerolog.DebugLevel, false)
	})
}

func configure(app string, level zerolog.Level, timestamp bool) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}

	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	ctx := zerolog.New(output).Level(level).With().Str("app", app)
	if timestamp {
		ctx = ctx.Timestamp()
	}
	log.Logger = ctx.Logger()
}

func parseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

// Package app は各コンポーネントを組み立てる
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"

	"opensauce/internal/camera"
	"opensauce/internal/config"
	"opensauce/internal/events"
	"opensauce/internal/lifecycle"
	"opensauce/internal/restart"
	"opensauce/internal/server"
	"opensauce/internal/state"
	"opensauce/internal/unity"
	"opensauce/internal/vision"
)

// App は1プロセス分のコンポーネント一式
type App struct {
	Config   *config.Config
	Holder   *state.Holder
	Marker   *restart.Marker
	Hub      *events.Hub
	Runner   *lifecycle.Runner
	Grabbers camera.Pair
}

// LoadConfig は設定ファイルを読み込む
// 既定のパスにファイルがない場合はデフォルト設定を使う
func LoadConfig(path string) (*config.Config, error) {
	if path == config.DefaultPath {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			log.Warn().Str("path", path).Msg("設定ファイルがないためデフォルト設定を使います")
			return config.Load("")
		}
	}
	return config.Load(path)
}

// New はコンポーネントを組み立てる
// streaming が false の場合はフレームバッファを作らず、配信は常にライブフレームになる
func New(cfg *config.Config, streaming bool) (*App, error) {
	grabbers, err := camera.Open(cfg)
	if err != nil {
		return nil, err
	}

	device := state.NewDevice(camera.Placeholder(cfg.Cameras[0].Width, cfg.Cameras[0].Height))

	var (
		buffer *state.FrameBuffer
		source *state.FrameSource
	)
	if streaming {
		buffer = state.NewFrameBuffer()
		source = state.NewFrameSource(true)
	}
	holder := state.NewHolder(device, buffer, source)

	marker := restart.New(cfg.Lifecycle.MarkerPath)
	hub := events.NewHub(64)
	client := unity.NewClient(grabbers)

	runner := lifecycle.NewRunner(lifecycle.Options{
		Config:   cfg,
		Holder:   holder,
		Marker:   marker,
		Scanner:  vision.NewScanner(grabbers, camera.NewDiscovery()),
		Reporter: client,
		Listener: client,
		Hub:      hub,
	})

	log.Info().
		Str("cam1", cfg.Cameras[0].Driver).
		Str("cam2", cfg.Cameras[1].Driver).
		Bool("streaming", streaming).
		Msg("コンポーネントを初期化しました")

	return &App{
		Config:   cfg,
		Holder:   holder,
		Marker:   marker,
		Hub:      hub,
		Runner:   runner,
		Grabbers: grabbers,
	}, nil
}

// Server はHTTPサーバーを作成する
func (a *App) Server() *server.Server {
	return server.New(server.Options{
		Config: a.Config,
		Holder: a.Holder,
		Marker: a.Marker,
		Runner: a.Runner,
		Hub:    a.Hub,
	})
}

// Close はカメラを解放する
func (a *App) Close() error {
	if err := a.Grabbers.Close(); err != nil {
		return fmt.Errorf("カメラの解放に失敗: %w", err)
	}
	return nil
}

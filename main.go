package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"opensauce/internal/app"
	"opensauce/internal/config"
	"opensauce/internal/logging"
)

func main() {
	logging.Init("opensauce")

	// 設定を読み込む
	cfg, err := app.LoadConfig(config.DefaultPath)
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗しました")
	}

	a, err := app.New(cfg, cfg.Stream.Enabled)
	if err != nil {
		log.Fatal().Err(err).Msg("初期化に失敗しました")
	}
	defer func() {
		_ = a.Close()
	}()

	// サーバーを起動
	if err := a.Server().Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("サーバーの起動に失敗しました")
	}
}

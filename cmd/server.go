// Package main はOpenSauceのコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"opensauce/internal/app"
	"opensauce/internal/camera"
	"opensauce/internal/config"
	"opensauce/internal/logging"
)

func main() {
	// コマンドラインオプション
	var (
		serve    = flag.Bool("serve", false, "Webサーバーを起動")
		scramble = flag.Bool("scramble", false, "スクランブルデモをこのプロセスで実行")
		devices  = flag.Bool("devices", false, "検出したカメラデバイスを表示")
		cfgPath  = flag.String("config", config.DefaultPath, "設定ファイル (.toml / .yaml)")
		host     = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port     = flag.Int("port", 0, "サーバーのポート (デフォルト: 8000)")
		help     = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help || (!*serve && !*scramble && !*devices) {
		fmt.Println("OpenSauce")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server --serve | --scramble | --devices [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	logging.Init("opensauce")

	if *devices {
		listDevices()
		return
	}

	// 設定を読み込む
	cfg, err := app.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("設定の読み込みに失敗しました")
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	if *scramble {
		runScramble(cfg)
		return
	}

	a, err := app.New(cfg, cfg.Stream.Enabled)
	if err != nil {
		log.Fatal().Err(err).Msg("初期化に失敗しました")
	}
	defer func() {
		_ = a.Close()
	}()

	log.Info().Str("addr", cfg.ServerAddress()).Msg("OpenSauce サーバーを起動します")
	if err := a.Server().Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("サーバーの起動に失敗しました")
	}
}

// runScramble はキャリブレーションループをフォアグラウンドで実行する
// ストリーミングは行わないのでフレームバッファは作らない
func runScramble(cfg *config.Config) {
	a, err := app.New(cfg, false)
	if err != nil {
		log.Fatal().Err(err).Msg("初期化に失敗しました")
	}
	defer func() {
		_ = a.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("スクランブルを開始します")
	if err := a.Runner.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("キャリブレーションループが終了しました")
	}
}

// listDevices は検出したV4L2デバイスを表示する
func listDevices() {
	ctx := context.Background()
	d := camera.NewDiscovery()

	found, err := d.ScanDevices(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("デバイスの検出に失敗しました")
	}
	if len(found) == 0 {
		fmt.Println("カメラデバイスが見つかりません")
		return
	}
	for _, dev := range found {
		fmt.Printf("%s\t%s\n", dev, d.DeviceName(ctx, dev))
	}
}

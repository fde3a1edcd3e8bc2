package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"opensauce/internal/config"
	"opensauce/internal/events"
	"opensauce/internal/lifecycle"
	"opensauce/internal/logging"
	"opensauce/internal/metrics"
	"opensauce/internal/restart"
	"opensauce/internal/state"
)

// Options はServerの依存関係
type Options struct {
	Config *config.Config
	Holder *state.Holder
	Marker *restart.Marker
	Runner *lifecycle.Runner
	Hub    *events.Hub
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config  *config.Config
	holder  *state.Holder
	marker  *restart.Marker
	runner  *lifecycle.Runner
	hub     *events.Hub
	started time.Time

	router     *gin.Engine
	httpServer *http.Server

	// runCtx はバックグラウンドで開始したループの寿命
	runCtx    context.Context
	runCancel context.CancelFunc
}

// New は新しいServerインスタンスを作成する
func New(opts Options) *Server {
	metrics.Register()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.RequestLogger(log.Logger))

	runCtx, runCancel := context.WithCancel(context.Background())
	s := &Server{
		config:    opts.Config,
		holder:    opts.Holder,
		marker:    opts.Marker,
		runner:    opts.Runner,
		hub:       opts.Hub,
		started:   time.Now(),
		router:    r,
		runCtx:    runCtx,
		runCancel: runCancel,
	}
	s.httpServer = &http.Server{
		Addr:         opts.Config.ServerAddress(),
		Handler:      r,
		ReadTimeout:  opts.Config.Server.ReadTimeout,
		WriteTimeout: opts.Config.Server.WriteTimeout,
	}
	s.setupRoutes()
	return s
}

// Router はテスト用にginエンジンを返す
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start はサーバーを起動し、ctx の終了かシグナルを受けるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve は ln でサーバーを起動する
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	shutdownCh := make(chan error, 1)

	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("HTTPサーバーを起動しています")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		log.Info().Msg("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("シグナルを受信しました")
	case err := <-shutdownCh:
		s.release()
		return err
	}

	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
//
// 配信中のストリームは Holder を閉じることで終了させる。
func (s *Server) Shutdown() error {
	log.Info().Msg("サーバーをシャットダウンしています...")
	s.release()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Info().Msg("サーバーが正常にシャットダウンされました")
	return nil
}

// release はループを止めて共有状態を閉じる
func (s *Server) release() {
	s.runCancel()
	if s.runner != nil {
		s.runner.Wait()
	}
	s.holder.Close()
}

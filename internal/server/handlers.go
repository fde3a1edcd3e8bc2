package server

import (
	"errors"
	"io/fs"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"opensauce/internal/lifecycle"
	"opensauce/internal/state"
	"opensauce/internal/stream"
)

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	files := staticFS(s.config.Server.StaticDir)

	s.router.GET("/", s.page(files, "index.html"))
	s.router.GET("/scramble-demo", s.page(files, "scramble.html"))
	s.router.GET("/error", s.page(files, "error.html"))
	s.router.StaticFS("/static", http.FS(files))

	s.router.POST("/start-scramble", s.handleStartScramble)
	s.router.POST("/recalibrate", s.handleRecalibrate)
	s.router.GET("/recalibrate_success", s.handleRecalibrateSuccess)

	s.router.GET("/video-cam-1", s.handleVideo(state.Cam1))
	s.router.GET("/video-cam-2", s.handleVideo(state.Cam2))

	s.router.GET("/health", s.handleHealth)
	s.router.GET("/api/status", s.handleStatus)
	s.router.GET("/events", s.handleEvents)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// page はHTMLファイルを返すハンドラを作る
func (s *Server) page(files fs.FS, name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := fs.ReadFile(files, name)
		if err != nil {
			log.Error().Err(err).Str("file", name).Msg("静的ファイルの読み込みに失敗しました")
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", data)
	}
}

// handleStartScramble はキャリブレーションループをバックグラウンドで開始する
func (s *Server) handleStartScramble(c *gin.Context) {
	log.Info().Msg("スクランブルを開始します")

	if err := s.runner.Start(s.runCtx); err != nil {
		if errors.Is(err, lifecycle.ErrAlreadyRunning) {
			c.String(http.StatusConflict, "Scramble already running")
			return
		}
		log.Error().Err(err).Msg("スクランブルの開始に失敗しました")
		c.String(http.StatusInternalServerError, "Failed to start scramble")
		return
	}
	c.String(http.StatusAccepted, "Scramble started")
}

// handleRecalibrate は再キャリブレーション要求のマーカーを作成する
func (s *Server) handleRecalibrate(c *gin.Context) {
	if err := s.marker.Create(); err != nil {
		log.Error().Err(err).Str("path", s.marker.Path).Msg("マーカーの作成に失敗しました")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}

// handleRecalibrateSuccess は直近のキャリブレーション結果を返す
func (s *Server) handleRecalibrateSuccess(c *gin.Context) {
	c.String(http.StatusOK, s.holder.Outcome().String())
}

// handleVideo はMJPEGストリームを配信するハンドラを作る
func (s *Server) handleVideo(cam state.Camera) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", stream.ContentType)
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Status(http.StatusOK)

		gen := stream.NewGenerator(s.holder, cam, s.config.Stream)
		if err := gen.Run(c.Request.Context(), c.Writer); err != nil {
			log.Debug().Err(err).Str("camera", cam.String()).Msg("ストリームが切断されました")
		}
	}
}

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"uptime":    time.Since(s.started).String(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus はキャリブレーションループの状態を返す
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"server": gin.H{
			"host": s.config.Server.Host,
			"port": s.config.Server.Port,
		},
		"streaming": s.holder.Buffer() != nil,
		"lifecycle": s.runner.Status(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleEvents は状態遷移をSSEで配信する
func (s *Server) handleEvents(c *gin.Context) {
	ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	// 接続直後に現在の状態を送る
	status := s.runner.Status()
	if err := sse.Encode(c.Writer, sse.Event{Event: "status", Data: status}); err != nil {
		return
	}
	c.Writer.Flush()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-s.runCtx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := sse.Encode(c.Writer, sse.Event{Event: ev.Type, Id: ev.RunID, Data: ev}); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

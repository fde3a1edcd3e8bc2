package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"opensauce/internal/config"
	"opensauce/internal/metrics"
	"opensauce/internal/state"
)

// Boundary はマルチパートの区切り文字列
const Boundary = "frame"

// ContentType はMJPEGストリームのContent-Type
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// ErrSkipped はフレームを送出しなかったティックを示す
var ErrSkipped = errors.New("stream: tick skipped")

// Flusher はチャンクを即座に送出できる書き込み先
type Flusher interface {
	Flush()
}

// Generator は1台のカメラ・1つの接続に対応するMJPEG生成器
type Generator struct {
	holder   *state.Holder
	camera   state.Camera
	encoder  Encoder
	interval time.Duration

	buf bytes.Buffer
}

// NewGenerator は新しいGeneratorを作成する
func NewGenerator(holder *state.Holder, camera state.Camera, cfg config.StreamConfig) *Generator {
	return &Generator{
		holder:   holder,
		camera:   camera,
		encoder:  JPEGEncoder{Quality: cfg.Quality},
		interval: cfg.Interval,
	}
}

// WithEncoder はエンコーダを差し替える
func (g *Generator) WithEncoder(e Encoder) *Generator {
	g.encoder = e
	return g
}

// Tick は1フレーム分のパートを書き込む
//
// フレームがまだない場合やエンコードに失敗した場合は何も書かずに ErrSkipped を返す。
// Holder が閉じられている場合は state.ErrClosed を返す。
func (g *Generator) Tick(w io.Writer) error {
	img, _, err := g.holder.Snapshot(g.camera)
	if err != nil {
		return err
	}
	if img == nil {
		return ErrSkipped
	}

	// ロック解放後にエンコードする
	g.buf.Reset()
	if err := g.encoder.Encode(&g.buf, img); err != nil {
		metrics.RecordEncodeError(g.camera.String())
		log.Warn().Err(err).Str("camera", g.camera.String()).Msg("フレームのエンコードに失敗しました")
		return ErrSkipped
	}

	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", Boundary, g.buf.Len())
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(g.buf.Bytes()); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return err
	}

	if f, ok := w.(Flusher); ok {
		f.Flush()
	}
	metrics.RecordFrame(g.camera.String())
	return nil
}

// Run は ctx が終了するまで一定間隔でフレームを書き込み続ける
// 書き込みに失敗するか Holder が閉じられた場合に戻る
func (g *Generator) Run(ctx context.Context, w io.Writer) error {
	done := metrics.StreamOpened(g.camera.String())
	defer done()

	logger := log.With().Str("camera", g.camera.String()).Logger()
	logger.Debug().Msg("ストリーミングを開始します")
	defer logger.Debug().Msg("ストリーミングを終了します")

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		if err := g.Tick(w); err != nil && !errors.Is(err, ErrSkipped) {
			if errors.Is(err, state.ErrClosed) {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

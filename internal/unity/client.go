package unity

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"opensauce/internal/config"
	"opensauce/internal/state"
)

// ErrRejected は外部システムが報告を受け付けなかった場合に返される
var ErrRejected = errors.New("unity: report rejected")

// defaultPollInterval はイベント待ちの間に停止要求を確認する間隔
const defaultPollInterval = 100 * time.Millisecond

// FrameSource はイベント受信時にフレームを取得する取得元
type FrameSource interface {
	Grab(ctx context.Context, cam state.Camera) (image.Image, error)
}

// Client は外部システムとの通信クライアント
type Client struct {
	frames       FrameSource
	pollInterval time.Duration
}

// NewClient は新しいClientを作成する
// frames は frame イベントでバッファを更新するために使う
func NewClient(frames FrameSource) *Client {
	return &Client{
		frames:       frames,
		pollInterval: defaultPollInterval,
	}
}

func dial(ctx context.Context, ip string, port int, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(ip, strconv.Itoa(port))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s への接続に失敗: %w", addr, err)
	}
	return conn, nil
}

func send(conn net.Conn, m Message) error {
	line, err := encodeLine(m)
	if err != nil {
		return fmt.Errorf("メッセージのエンコードに失敗: %w", err)
	}
	if _, err := conn.Write(line); err != nil {
		return fmt.Errorf("メッセージの送信に失敗: %w", err)
	}
	return nil
}

// ReportPositions は位置を送信し、受信確認を待つ
func (c *Client) ReportPositions(ctx context.Context, opts config.UnityConfig, positions state.Positions) error {
	conn, err := dial(ctx, opts.IP, opts.Ports[0], opts.DialTimeout)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	if err := conn.SetDeadline(time.Now().Add(opts.DialTimeout)); err != nil {
		return err
	}
	if err := send(conn, positionsMessage(positions)); err != nil {
		return err
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("受信確認の読み込みに失敗: %w", err)
	}
	reply, err := decodeLine(line)
	if err != nil {
		return fmt.Errorf("受信確認の解析に失敗: %w", err)
	}

	switch reply.Type {
	case TypeAck:
		log.Debug().Interface("positions", positions).Msg("位置を送信しました")
		return nil
	case TypeError:
		return fmt.Errorf("%w: %s", ErrRejected, reply.Message)
	default:
		return fmt.Errorf("%w: 不明な応答 %q", ErrRejected, reply.Type)
	}
}

// NotifyRestart は再起動を通知する。応答は待たない
func (c *Client) NotifyRestart(ctx context.Context, ip string, port int) error {
	conn, err := dial(ctx, ip, port, 2*time.Second)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()
	return send(conn, Message{Type: TypeRestart})
}

// ListenEvents はイベントを購読し、stop を受信するか停止要求があるまで受信し続ける
//
// frame イベントを受信するたびに両カメラのフレームを取得してバッファを更新する。
// 停止要求（ctx のキャンセル、または keepalive が false）の場合は nil を返す。
func (c *Client) ListenEvents(ctx context.Context, device *state.Device, opts config.UnityConfig, _ *config.Config, port int, buffer *state.FrameBuffer) error {
	conn, err := dial(ctx, opts.IP, port, opts.DialTimeout)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	if err := send(conn, Message{Type: TypeSubscribe}); err != nil {
		return err
	}
	log.Info().Str("remote", conn.RemoteAddr().String()).Msg("イベントの購読を開始しました")

	reader := bufio.NewReader(conn)
	var pending []byte
	for {
		if ctx.Err() != nil || !device.Keepalive() {
			return nil
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.pollInterval)); err != nil {
			return err
		}
		chunk, err := reader.ReadBytes('\n')
		pending = append(pending, chunk...)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("イベントの受信中に接続が切断されました: %w", err)
			}
			return fmt.Errorf("イベントの受信に失敗: %w", err)
		}

		line := bytes.TrimSpace(pending)
		pending = pending[:0]
		if len(line) == 0 {
			continue
		}

		ev, err := decodeLine(line)
		if err != nil {
			log.Warn().Err(err).Bytes("line", line).Msg("イベントの解析に失敗しました")
			continue
		}

		switch ev.Type {
		case TypeFrame:
			c.refresh(ctx, buffer)
		case TypeStop:
			log.Info().Msg("停止イベントを受信しました")
			return nil
		default:
			log.Debug().Str("type", ev.Type).Msg("未知のイベントを無視します")
		}
	}
}

// refresh は両カメラのフレームを取得してバッファを更新する
// 取得に失敗した場合はバッファをそのままにする
func (c *Client) refresh(ctx context.Context, buffer *state.FrameBuffer) {
	if buffer == nil || c.frames == nil {
		return
	}

	var frames [2]image.Image
	for _, cam := range state.Cameras {
		img, err := c.frames.Grab(ctx, cam)
		if err != nil {
			log.Warn().Err(err).Str("camera", cam.String()).Msg("フレームの取得に失敗しました")
			return
		}
		frames[cam] = img
	}
	buffer.SetFrames(frames[0], frames[1])
}

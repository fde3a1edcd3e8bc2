package lifecycle

import (
	"context"
	"sync/atomic"

	"opensauce/internal/config"
	"opensauce/internal/state"
)

// Listener は1回のキャリブレーションに対応するイベントリスナーの実行単位
type Listener struct {
	id     string
	device *state.Device
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	halted atomic.Bool
}

// startListener はイベントリスナーを専用のゴルーチンで起動する
//
// 終了時には keepalive を true に戻し、onExit を呼んでから done を閉じる。
// done を待った側からは onExit の結果が必ず見える。
// halted は停止要求による終了かどうか。
func startListener(
	ctx context.Context,
	id string,
	el EventListener,
	device *state.Device,
	cfg *config.Config,
	buffer *state.FrameBuffer,
	onExit func(l *Listener, err error, halted bool),
) *Listener {
	lctx, cancel := context.WithCancel(ctx)
	l := &Listener{
		id:     id,
		device: device,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		err := el.ListenEvents(lctx, device, cfg.Unity, cfg, cfg.ReportPort(), buffer)

		// 停止要求か親コンテキストの終了による場合は正常終了として扱う
		halted := l.halted.Load() || lctx.Err() != nil

		l.err = err
		device.SetKeepalive(true)
		cancel()

		if onExit != nil {
			onExit(l, err, halted)
		}
		close(l.done)
	}()

	return l
}

// ID はリスナーの識別子を返す
func (l *Listener) ID() string {
	return l.id
}

// Halt はリスナーに停止を要求する。終了は待たない
func (l *Listener) Halt() {
	l.halted.Store(true)
	l.device.SetKeepalive(false)
	l.cancel()
}

// Done はリスナー終了時に閉じられるチャンネルを返す
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Err は終了後のエラーを返す。Done が閉じる前は nil
func (l *Listener) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// Active はリスナーが動作中か判定する
func (l *Listener) Active() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

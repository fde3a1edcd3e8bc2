package state

import (
	"image"
	"sync"

	"github.com/rs/zerolog/log"
)

// Holder はループ・リスナー・ストリーミングが共有する状態への参照をまとめる
//
// buffer と source はストリーミングが無効な場合 nil になる
type Holder struct {
	mu      sync.RWMutex
	device  *Device
	buffer  *FrameBuffer
	source  *FrameSource
	outcome *Outcome
	closed  bool
}

// NewHolder は新しいHolderを作成する
func NewHolder(device *Device, buffer *FrameBuffer, source *FrameSource) *Holder {
	return &Holder{
		device:  device,
		buffer:  buffer,
		source:  source,
		outcome: NewOutcome(),
	}
}

// Device はデバイス状態を返す
func (h *Holder) Device() *Device {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.device
}

// Buffer はフレームバッファを返す（ストリーミング無効時は nil）
func (h *Holder) Buffer() *FrameBuffer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.buffer
}

// Source はフレームソースフラグを返す（ストリーミング無効時は nil）
func (h *Holder) Source() *FrameSource {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.source
}

// Outcome はキャリブレーション結果フラグを返す
func (h *Holder) Outcome() *Outcome {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.outcome
}

// SetLive はフレームソースを切り替える。ソースがない場合は何もしない
func (h *Holder) SetLive(live bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.source != nil {
		h.source.SetLive(live)
	}
}

// Snapshot はフラグが示すソースから指定カメラのフレームをコピーして返す
//
// Holder → FrameSource → Device/FrameBuffer の順でロックを取得し、
// コピーはフレームのロック下で行う。エンコードは呼び出し側でロック解放後に行うこと。
// 1回の呼び出しで読むソースは1つだけ。
func (h *Holder) Snapshot(cam Camera) (image.Image, Source, error) {
	img, src, fellBack, err := h.snapshot(cam)
	// ログはロック解放後に出す
	if fellBack {
		log.Debug().Str("camera", cam.String()).Msg("共有バッファがないためライブのフレームを返します")
	}
	return img, src, err
}

func (h *Holder) snapshot(cam Camera) (img image.Image, src Source, fellBack bool, err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, SourceLive, false, ErrClosed
	}

	if h.source != nil && !h.source.Live() {
		if h.buffer != nil {
			return h.buffer.Frame(cam), SourceBuffer, false, nil
		}
		fellBack = true
	}
	return h.device.Frame(cam), SourceLive, fellBack, nil
}

// Close はHolderを閉じる。以後の Snapshot は ErrClosed を返す
func (h *Holder) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

package state

import (
	"image"
	"sync"
)

// FrameBuffer はイベントリスナーが更新する最後に正常だったフレームの組
// 書き込むのはイベントリスナーだけ
type FrameBuffer struct {
	mu     sync.Mutex
	frames [2]image.Image
}

// NewFrameBuffer は空のFrameBufferを作成する
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{}
}

// Frame は指定カメラのバッファ済みフレームのコピーを返す
// まだ書き込まれていない場合は nil
func (b *FrameBuffer) Frame(cam Camera) image.Image {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneImage(b.frames[cam])
}

// SetFrames は両カメラのフレームをまとめて更新する
// 渡した画像の所有権は FrameBuffer に移る
func (b *FrameBuffer) SetFrames(cam1, cam2 image.Image) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames[Cam1] = cam1
	b.frames[Cam2] = cam2
}

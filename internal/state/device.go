package state

import (
	"image"
	"sync"
)

// Device はカメラのライブフレームとスレッド間のハンドシェイクフラグを保持する
type Device struct {
	mu        sync.Mutex
	frames    [2]image.Image
	keepalive bool
	positions Positions
}

// NewDevice は新しいDeviceを作成する
// placeholder は最初のスキャンまで両カメラに表示する画像
func NewDevice(placeholder image.Image) *Device {
	return &Device{
		frames:    [2]image.Image{cloneImage(placeholder), cloneImage(placeholder)},
		keepalive: true,
	}
}

// Frame は指定カメラのライブフレームのコピーを返す
func (d *Device) Frame(cam Camera) image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneImage(d.frames[cam])
}

// SetFrame はライブフレームを更新する
// 渡した画像の所有権は Device に移る
func (d *Device) SetFrame(cam Camera, img image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames[cam] = img
}

// Keepalive はハンドシェイクフラグを返す
func (d *Device) Keepalive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keepalive
}

// SetKeepalive はハンドシェイクフラグを設定する
//
// false はリスナーへの停止要求、true はリスナーが終了済み（または基準状態）を表す
func (d *Device) SetKeepalive(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keepalive = v
}

// Positions は直近のスキャンで検出された位置を返す
func (d *Device) Positions() Positions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.positions
}

// SetPositions は検出位置を更新する
func (d *Device) SetPositions(p Positions) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.positions = p
}

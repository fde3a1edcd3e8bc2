package state

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
)

// ErrClosed は Holder が閉じられた後のアクセスで返される
var ErrClosed = errors.New("state: holder closed")

// Camera は物理カメラの番号
type Camera int

const (
	Cam1 Camera = iota
	Cam2
)

// Cameras は全カメラを順に並べたもの
var Cameras = [...]Camera{Cam1, Cam2}

// String はメトリクスやログで使うカメラ名を返す
func (c Camera) String() string {
	return fmt.Sprintf("cam-%d", int(c)+1)
}

// Valid はカメラ番号が範囲内か判定する
func (c Camera) Valid() bool {
	return c == Cam1 || c == Cam2
}

// Source はフレームの取得元
type Source int

const (
	SourceLive   Source = iota // Device のライブフレーム
	SourceBuffer               // FrameBuffer のフレーム
)

// String はフレームソースの表示名を返す
func (s Source) String() string {
	if s == SourceBuffer {
		return "buffer"
	}
	return "live"
}

// Positions はカメラごとに検出された位置
type Positions [2]image.Point

// cloneImage は画像のディープコピーを作る
func cloneImage(img image.Image) image.Image {
	if img == nil {
		return nil
	}

	switch src := img.(type) {
	case *image.RGBA:
		c := *src
		c.Pix = append([]uint8(nil), src.Pix...)
		return &c
	case *image.Gray:
		c := *src
		c.Pix = append([]uint8(nil), src.Pix...)
		return &c
	case *image.YCbCr:
		c := *src
		c.Y = append([]uint8(nil), src.Y...)
		c.Cb = append([]uint8(nil), src.Cb...)
		c.Cr = append([]uint8(nil), src.Cr...)
		return &c
	}

	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, img, b.Min, draw.Src)
	return dst
}

package camera

import (
	"context"
	"errors"
	"image"
)

// ドライバ名
const (
	DriverFFmpeg = "ffmpeg"
	DriverV4L2   = "v4l2"
	DriverStatic = "static"
)

// ErrUnsupported はこの環境で使えないドライバが指定された場合に返される
var ErrUnsupported = errors.New("camera: driver not supported on this platform")

// Grabber は1台のカメラからフレームを取得する
type Grabber interface {
	// Grab は1フレームを取得する。ブロックする
	Grab(ctx context.Context) (image.Image, error)

	// Close はデバイスを解放する
	Close() error
}

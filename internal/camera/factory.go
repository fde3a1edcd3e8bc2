package camera

import (
	"context"
	"errors"
	"fmt"
	"image"

	"opensauce/internal/config"
	"opensauce/internal/state"
)

// New は設定のドライバに応じた Grabber を作成する
func New(dev config.CameraDevice) (Grabber, error) {
	switch dev.Driver {
	case DriverFFmpeg:
		return NewFFmpegGrabber(dev), nil
	case DriverV4L2:
		return NewWebcamGrabber(dev)
	case DriverStatic:
		return NewStaticGrabber(dev.Image, dev.Width, dev.Height)
	default:
		return nil, fmt.Errorf("未知のドライバ: %s", dev.Driver)
	}
}

// Pair はカメラ1・カメラ2の Grabber の組
type Pair [2]Grabber

// Open は設定された2台のカメラの Grabber を作成する
func Open(cfg *config.Config) (Pair, error) {
	var p Pair
	for i, dev := range cfg.Cameras {
		g, err := New(dev)
		if err != nil {
			_ = p.Close()
			return Pair{}, fmt.Errorf("カメラ %s の初期化に失敗: %w", dev.ID, err)
		}
		p[i] = g
	}
	return p, nil
}

// Grab は指定カメラのフレームを取得する
func (p Pair) Grab(ctx context.Context, cam state.Camera) (image.Image, error) {
	if !cam.Valid() || p[cam] == nil {
		return nil, fmt.Errorf("カメラ %s は設定されていません", cam)
	}
	return p[cam].Grab(ctx)
}

// Close は両方の Grabber を閉じる
func (p Pair) Close() error {
	var errs []error
	for _, g := range p {
		if g != nil {
			if err := g.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

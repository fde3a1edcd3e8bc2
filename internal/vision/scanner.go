// Package vision はカメラ画像から光点の位置を求める
package vision

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/rs/zerolog/log"

	"opensauce/internal/camera"
	"opensauce/internal/config"
	"opensauce/internal/state"
)

// ErrNotFound は十分な明るさの光点が見つからない場合に返される
var ErrNotFound = errors.New("vision: no bright spot found")

// FrameSource はカメラごとのフレーム取得元
type FrameSource interface {
	Grab(ctx context.Context, cam state.Camera) (image.Image, error)
}

// Prober はデバイスが利用可能か確認する
type Prober interface {
	Probe(ctx context.Context, device string) error
}

// Scanner は両カメラのフレームを取得し、最も明るい点を位置として記録する
type Scanner struct {
	frames FrameSource
	prober Prober
}

// NewScanner は新しいScannerを作成する
// prober が nil の場合は事前確認を行わない
func NewScanner(frames FrameSource, prober Prober) *Scanner {
	return &Scanner{frames: frames, prober: prober}
}

// Scan は両カメラをスキャンし、フレームと位置を device に書き込む
//
// streamlined が false の場合は取得前にデバイスの事前確認を行う。
// crop が指定された場合はその領域内だけを探索する。
// どちらかのカメラで光点が見つからなければ位置は更新しない。
func (s *Scanner) Scan(ctx context.Context, cfg *config.Config, device *state.Device, streamlined bool, crop *config.CropOverride) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Scan.Timeout)
	defer cancel()

	if !streamlined {
		if err := s.preflight(ctx, cfg); err != nil {
			return err
		}
	}

	var positions state.Positions
	for _, cam := range state.Cameras {
		img, err := s.frames.Grab(ctx, cam)
		if err != nil {
			return fmt.Errorf("%s のフレーム取得に失敗: %w", cam, err)
		}
		device.SetFrame(cam, img)

		region := img.Bounds()
		if crop != nil {
			region = crop[cam].Image().Intersect(region)
			if region.Empty() {
				return fmt.Errorf("%s の切り抜き領域が画像の外です: %+v", cam, crop[cam])
			}
		}

		p, luma := Brightest(img, region)
		log.Debug().
			Str("camera", cam.String()).
			Int("x", p.X).
			Int("y", p.Y).
			Uint8("luma", luma).
			Msg("光点を検出しました")

		if luma < cfg.Scan.MinBrightness {
			return fmt.Errorf("%s: 最大輝度 %d < %d: %w", cam, luma, cfg.Scan.MinBrightness, ErrNotFound)
		}
		positions[cam] = p
	}

	device.SetPositions(positions)
	return nil
}

// preflight は実デバイスを使うカメラが開けるか確認する
func (s *Scanner) preflight(ctx context.Context, cfg *config.Config) error {
	if s.prober == nil {
		return nil
	}
	for _, dev := range cfg.Cameras {
		if dev.Driver == camera.DriverStatic {
			continue
		}
		if err := s.prober.Probe(ctx, dev.Device); err != nil {
			return fmt.Errorf("カメラ %s が利用できません: %w", dev.ID, err)
		}
	}
	return nil
}

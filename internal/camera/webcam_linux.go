//go:build linux

package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	"github.com/blackjack/webcam"
	"github.com/rs/zerolog/log"

	"opensauce/internal/config"
)

// frameWaitSeconds は WaitForFrame の1回あたりの待ち時間
const frameWaitSeconds = 1

// WebcamGrabber はV4L2デバイスからMJPEGで直接フレームを取得する
//
// デバイスは最初の Grab で開き、Close まで開いたままにする。
type WebcamGrabber struct {
	devicePath string
	width      int
	height     int

	mu  sync.Mutex
	cam *webcam.Webcam
}

// NewWebcamGrabber は新しいWebcamGrabberを作成する
func NewWebcamGrabber(dev config.CameraDevice) (*WebcamGrabber, error) {
	return &WebcamGrabber{
		devicePath: dev.Device,
		width:      dev.Width,
		height:     dev.Height,
	}, nil
}

// open はデバイスを開いてストリーミングを開始する
func (g *WebcamGrabber) open() error {
	cam, err := webcam.Open(g.devicePath)
	if err != nil {
		return fmt.Errorf("デバイスを開けません (%s): %w", g.devicePath, err)
	}

	format, ok := mjpegFormat(cam.GetSupportedFormats())
	if !ok {
		_ = cam.Close()
		return fmt.Errorf("MJPEGに対応していません: %s", g.devicePath)
	}

	_, w, h, err := cam.SetImageFormat(format, uint32(g.width), uint32(g.height))
	if err != nil {
		_ = cam.Close()
		return fmt.Errorf("画像フォーマットの設定に失敗: %w", err)
	}
	if err := cam.SetBufferCount(2); err != nil {
		_ = cam.Close()
		return fmt.Errorf("バッファ数の設定に失敗: %w", err)
	}
	if err := cam.StartStreaming(); err != nil {
		_ = cam.Close()
		return fmt.Errorf("ストリーミングの開始に失敗: %w", err)
	}

	log.Info().
		Str("device", g.devicePath).
		Uint32("width", w).
		Uint32("height", h).
		Msg("V4L2デバイスを開きました")

	g.cam = cam
	return nil
}

// Grab は次のフレームを待って取得する
func (g *WebcamGrabber) Grab(ctx context.Context) (image.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cam == nil {
		if err := g.open(); err != nil {
			return nil, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		err := g.cam.WaitForFrame(frameWaitSeconds)
		var timeout *webcam.Timeout
		if errors.As(err, &timeout) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("フレーム待機に失敗: %w", err)
		}

		frame, err := g.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("フレーム読み取りに失敗: %w", err)
		}
		if len(frame) == 0 {
			continue
		}

		// ReadFrame のバッファは次の読み取りで再利用される
		img, err := jpeg.Decode(bytes.NewReader(append([]byte(nil), frame...)))
		if err != nil {
			return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
		}
		return img, nil
	}
}

// Close はストリーミングを止めてデバイスを閉じる
func (g *WebcamGrabber) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cam == nil {
		return nil
	}
	_ = g.cam.StopStreaming()
	err := g.cam.Close()
	g.cam = nil
	return err
}

// mjpegFormat は対応フォーマットからMJPEGを探す
func mjpegFormat(formats map[webcam.PixelFormat]string) (webcam.PixelFormat, bool) {
	for f, name := range formats {
		if name == "Motion-JPEG" {
			return f, true
		}
	}
	return 0, false
}

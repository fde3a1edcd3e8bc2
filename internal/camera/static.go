package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
)

// StaticGrabber は常に同じ画像を返す。カメラのない環境での動作確認用
type StaticGrabber struct {
	mu  sync.Mutex
	img image.Image
}

// NewStaticGrabber は画像ファイルから StaticGrabber を作成する
// path が空の場合はテストパターンを使う
func NewStaticGrabber(path string, width, height int) (*StaticGrabber, error) {
	if path == "" {
		return &StaticGrabber{img: Placeholder(width, height)}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("画像ファイルを開けません: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗: %w", err)
	}
	return &StaticGrabber{img: img}, nil
}

// NewStaticGrabberFromImage は画像から StaticGrabber を作成する
func NewStaticGrabberFromImage(img image.Image) *StaticGrabber {
	return &StaticGrabber{img: img}
}

// Grab は保持している画像のコピーを返す
func (s *StaticGrabber) Grab(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, s.img.At(x, y))
		}
	}
	return dst, nil
}

// Close は何もしない
func (s *StaticGrabber) Close() error {
	return nil
}

// Placeholder は最初のスキャン前に表示するグラデーション画像を生成する
func Placeholder(width, height int) image.Image {
	if width <= 0 || height <= 0 {
		width, height = 640, 360
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(32 + (x*96)/width)})
		}
	}
	return img
}

package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"

	"opensauce/internal/config"
)

// FFmpegGrabber はffmpegを使ってV4L2デバイスから1フレームずつ取得する
type FFmpegGrabber struct {
	bin        string
	devicePath string
	width      int
	height     int
}

// NewFFmpegGrabber は新しいFFmpegGrabberを作成する
func NewFFmpegGrabber(dev config.CameraDevice) *FFmpegGrabber {
	return &FFmpegGrabber{
		bin:        "ffmpeg",
		devicePath: dev.Device,
		width:      dev.Width,
		height:     dev.Height,
	}
}

// Grab は1フレームをキャプチャしてデコード済みの画像として返す
func (c *FFmpegGrabber) Grab(ctx context.Context) (image.Image, error) {
	data, err := c.GrabJPEG(ctx)
	if err != nil {
		return nil, err
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}
	return img, nil
}

// GrabJPEG は1フレームをキャプチャしてJPEGバイト列として返す
func (c *FFmpegGrabber) GrabJPEG(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, c.args()...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("フレームキャプチャに失敗 (%s): %w (stderr: %s)", c.devicePath, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("フレームキャプチャに失敗 (%s): 出力が空です", c.devicePath)
	}

	return stdout.Bytes(), nil
}

func (c *FFmpegGrabber) args() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-i", c.devicePath,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2", // 高品質JPEG
		"-",
	}
}

// Close は何もしない。プロセスは1フレームごとに終了する
func (c *FFmpegGrabber) Close() error {
	return nil
}

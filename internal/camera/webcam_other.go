//go:build !linux

package camera

import (
	"context"
	"image"

	"opensauce/internal/config"
)

// WebcamGrabber はLinux以外では使えない
type WebcamGrabber struct{}

// NewWebcamGrabber は ErrUnsupported を返す
func NewWebcamGrabber(config.CameraDevice) (*WebcamGrabber, error) {
	return nil, ErrUnsupported
}

// Grab は ErrUnsupported を返す
func (g *WebcamGrabber) Grab(context.Context) (image.Image, error) {
	return nil, ErrUnsupported
}

// Close は何もしない
func (g *WebcamGrabber) Close() error {
	return nil
}

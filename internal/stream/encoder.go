package stream

import (
	"image"
	"image/jpeg"
	"io"
)

// Encoder はフレームを圧縮画像に変換する
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
}

// JPEGEncoder は image/jpeg によるエンコーダ
type JPEGEncoder struct {
	Quality int
}

// Encode はフレームをJPEGで書き出す
func (e JPEGEncoder) Encode(w io.Writer, img image.Image) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: e.Quality})
}

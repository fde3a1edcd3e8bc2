package config

import "image"

// Rect はカメラ画像上の矩形領域 (x, y, w, h)
type Rect struct {
	X int
	Y int
	W int
	H int
}

// Image は image.Rectangle に変換する
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// CropOverride はカメラ1・カメラ2それぞれのスキャン対象領域
type CropOverride [2]Rect

// CropOverride は設定から切り抜き領域を組み立てる
// 設定されていない場合は nil を返す
func (c *Config) CropOverride() *CropOverride {
	v := c.Advanced.Transform.CropOverride
	if len(v) != 8 {
		return nil
	}
	return &CropOverride{
		{X: v[0], Y: v[1], W: v[2], H: v[3]},
		{X: v[4], Y: v[5], W: v[6], H: v[7]},
	}
}

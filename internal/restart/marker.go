// Package restart は再キャリブレーション要求を表すファイルマーカーを扱う
//
// マーカーは中身を持たず、存在すること自体が要求を意味する。
// 生成側（制御リクエスト）と消費側（キャリブレーションループ）は
// 別プロセスの場合があるため、ファイルシステム上に置く。
package restart

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Marker は再キャリブレーション要求のマーカーファイル
type Marker struct {
	Path string
}

// New は新しいMarkerを作成する
func New(path string) *Marker {
	return &Marker{Path: path}
}

// Create はマーカーを作成する。既に存在していても結果は同じ
func (m *Marker) Create() error {
	f, err := os.Create(m.Path)
	if err != nil {
		return fmt.Errorf("マーカー %s の作成に失敗: %w", m.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("マーカー %s のクローズに失敗: %w", m.Path, err)
	}
	return nil
}

// Exists はマーカーが存在するか判定する
func (m *Marker) Exists() bool {
	_, err := os.Stat(m.Path)
	return err == nil
}

// Consume はマーカーを削除する。存在していた場合は true を返す
func (m *Marker) Consume() (bool, error) {
	err := os.Remove(m.Path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("マーカー %s の削除に失敗: %w", m.Path, err)
}

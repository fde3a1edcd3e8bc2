package camera

import (
	"context"
	"image"
	"sync"
)

// MockGrabber はテスト用のGrabber実装
type MockGrabber struct {
	mu     sync.Mutex
	frame  image.Image
	err    error
	grabs  int
	closed bool
}

// NewMockGrabber は新しいMockGrabberを作成する
func NewMockGrabber(frame image.Image) *MockGrabber {
	return &MockGrabber{frame: frame}
}

// SetFrame は次に返すフレームを設定する
func (m *MockGrabber) SetFrame(frame image.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = frame
}

// SetError は Grab が返すエラーを設定する
func (m *MockGrabber) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Grab は設定されたフレームを返す
func (m *MockGrabber) Grab(ctx context.Context) (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grabs++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.frame, nil
}

// Close は閉じたことを記録する
func (m *MockGrabber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Grabs は Grab の呼び出し回数を返す
func (m *MockGrabber) Grabs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grabs
}

// Closed は Close が呼ばれたか返す
func (m *MockGrabber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

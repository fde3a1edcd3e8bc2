package lifecycle

import (
	"context"
	"image"
	"sync"
	"time"

	"opensauce/internal/config"
	"opensauce/internal/state"
)

// ScanCall はMockScannerに渡された引数
type ScanCall struct {
	Streamlined bool
	Crop        *config.CropOverride
}

// MockScanner はテスト用のScanner実装
// results に積まれた結果を順に返し、尽きたら最後の結果を返し続ける
type MockScanner struct {
	mu        sync.Mutex
	results   []error
	last      error
	calls     []ScanCall
	frame     image.Image
	positions state.Positions
}

// NewMockScanner は新しいMockScannerを作成する
func NewMockScanner(results ...error) *MockScanner {
	return &MockScanner{results: results}
}

// SetFrame はスキャン時にデバイスへ書き込むフレームを設定する
func (m *MockScanner) SetFrame(img image.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = img
}

// SetPositions はスキャン時に書き込む位置を設定する
func (m *MockScanner) SetPositions(p state.Positions) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = p
}

// Push は次に返す結果を追加する
func (m *MockScanner) Push(results ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, results...)
}

// Scan はモックスキャンを実行する
func (m *MockScanner) Scan(_ context.Context, _ *config.Config, device *state.Device, streamlined bool, crop *config.CropOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, ScanCall{Streamlined: streamlined, Crop: crop})

	if len(m.results) > 0 {
		m.last = m.results[0]
		m.results = m.results[1:]
	}
	err := m.last

	if err == nil {
		if m.frame != nil {
			device.SetFrame(state.Cam1, m.frame)
			device.SetFrame(state.Cam2, m.frame)
		}
		device.SetPositions(m.positions)
	}
	return err
}

// Calls はこれまでの呼び出しを返す
func (m *MockScanner) Calls() []ScanCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScanCall(nil), m.calls...)
}

// MockReporter はテスト用のReporter実装
type MockReporter struct {
	mu        sync.Mutex
	reportErr error
	reports   []state.Positions
	restarts  []string
}

// NewMockReporter は新しいMockReporterを作成する
func NewMockReporter() *MockReporter {
	return &MockReporter{}
}

// SetReportError は ReportPositions が返すエラーを設定する
func (m *MockReporter) SetReportError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportErr = err
}

// ReportPositions は報告内容を記録する
func (m *MockReporter) ReportPositions(_ context.Context, _ config.UnityConfig, positions state.Positions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, positions)
	return m.reportErr
}

// NotifyRestart は通知先を記録する
func (m *MockReporter) NotifyRestart(_ context.Context, ip string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts = append(m.restarts, ip)
	return nil
}

// Reports は報告された位置の一覧を返す
func (m *MockReporter) Reports() []state.Positions {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]state.Positions(nil), m.reports...)
}

// Restarts は再起動通知の回数を返す
func (m *MockReporter) Restarts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.restarts)
}

// MockEventListener はテスト用のEventListener実装
//
// 起動するとバッファに frames を書き込み、停止要求が来るまで待つ。
// exitErr が設定されている場合は exitAfter 経過後にそのエラーで戻る。
type MockEventListener struct {
	mu        sync.Mutex
	frames    [2]image.Image
	exitErr   error
	exitAfter time.Duration
	starts    int
	exits     int
}

// NewMockEventListener は新しいMockEventListenerを作成する
func NewMockEventListener() *MockEventListener {
	return &MockEventListener{}
}

// SetFrames は起動時にバッファへ書き込むフレームを設定する
func (m *MockEventListener) SetFrames(cam1, cam2 image.Image) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = [2]image.Image{cam1, cam2}
}

// SetExit は自発的な終了を設定する
func (m *MockEventListener) SetExit(err error, after time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exitErr = err
	m.exitAfter = after
}

// ListenEvents は停止要求まで待つ
func (m *MockEventListener) ListenEvents(ctx context.Context, device *state.Device, _ config.UnityConfig, _ *config.Config, _ int, buffer *state.FrameBuffer) error {
	m.mu.Lock()
	m.starts++
	frames := m.frames
	exitErr := m.exitErr
	exitAfter := m.exitAfter
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.exits++
		m.mu.Unlock()
	}()

	if buffer != nil && frames[0] != nil {
		buffer.SetFrames(frames[0], frames[1])
	}

	var exitCh <-chan time.Time
	if exitErr != nil {
		exitCh = time.After(exitAfter)
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-exitCh:
			return exitErr
		case <-ticker.C:
			if !device.Keepalive() {
				return nil
			}
		}
	}
}

// Starts は起動回数を返す
func (m *MockEventListener) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Exits は終了回数を返す
func (m *MockEventListener) Exits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exits
}

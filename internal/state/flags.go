package state

import "sync"

// FrameSource はストリーミングが読むフレームソースの切り替えフラグ
// 書き込むのはキャリブレーションループだけ
type FrameSource struct {
	mu   sync.Mutex
	live bool
}

// NewFrameSource は新しいFrameSourceを作成する
func NewFrameSource(live bool) *FrameSource {
	return &FrameSource{live: live}
}

// Live はライブフレームを読むべきなら true を返す
func (f *FrameSource) Live() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

// SetLive はフレームソースを切り替える
func (f *FrameSource) SetLive(live bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = live
}

// Current は現在のソースを返す
func (f *FrameSource) Current() Source {
	if f.Live() {
		return SourceLive
	}
	return SourceBuffer
}

// Outcome は直近のスキャン結果
// 書き込むのはキャリブレーションループだけ
type Outcome struct {
	mu sync.Mutex
	ok bool
}

// NewOutcome は成功状態で初期化されたOutcomeを作成する
func NewOutcome() *Outcome {
	return &Outcome{ok: true}
}

// Success は直近のスキャンが成功したかを返す
func (o *Outcome) Success() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ok
}

// Set はスキャン結果を記録する
func (o *Outcome) Set(ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ok = ok
}

// String は "SUCCESS" または "FAIL" を返す
func (o *Outcome) String() string {
	if o.Success() {
		return "SUCCESS"
	}
	return "FAIL"
}

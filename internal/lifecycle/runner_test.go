package lifecycle

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"opensauce/internal/config"
	"opensauce/internal/events"
	"opensauce/internal/logging"
	"opensauce/internal/restart"
	"opensauce/internal/state"
)

func init() {
	logging.ConfigureTests()
}

type fixture struct {
	cfg      *config.Config
	holder   *state.Holder
	marker   *restart.Marker
	scanner  *MockScanner
	reporter *MockReporter
	listener *MockEventListener
	hub      *events.Hub

	fatalMu  sync.Mutex
	fatalErr error
}

func newFixture(t *testing.T, mutate func(cfg *config.Config), scanResults ...error) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Lifecycle.MarkerPath = filepath.Join(t.TempDir(), "end_loop")
	cfg.Lifecycle.TriggerPoll = time.Millisecond
	cfg.Lifecycle.HandshakePoll = time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	return &fixture{
		cfg:      cfg,
		holder:   state.NewHolder(state.NewDevice(image.NewGray(image.Rect(0, 0, 4, 4))), state.NewFrameBuffer(), state.NewFrameSource(true)),
		marker:   restart.New(cfg.Lifecycle.MarkerPath),
		scanner:  NewMockScanner(scanResults...),
		reporter: NewMockReporter(),
		listener: NewMockEventListener(),
		hub:      events.NewHub(32),
	}
}

func (f *fixture) runner() *Runner {
	return NewRunner(Options{
		Config:   f.cfg,
		Holder:   f.holder,
		Marker:   f.marker,
		Scanner:  f.scanner,
		Reporter: f.reporter,
		Listener: f.listener,
		Hub:      f.hub,
		Fatal: func(_ string, err error) {
			f.fatalMu.Lock()
			defer f.fatalMu.Unlock()
			f.fatalErr = err
		},
	})
}

func (f *fixture) fatal() error {
	f.fatalMu.Lock()
	defer f.fatalMu.Unlock()
	return f.fatalErr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("タイムアウト: %s", what)
}

func startRunner(t *testing.T, r *Runner) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		r.Wait()
	})
	return cancel
}

func settledWithListener(r *Runner) func() bool {
	return func() bool {
		s := r.Status()
		return s.ListenerActive && s.Phase == PhaseAwaitingTrigger
	}
}

func settledAfterScans(r *Runner, s *MockScanner, n int) func() bool {
	return func() bool {
		return len(s.Calls()) >= n && r.Status().Phase == PhaseAwaitingTrigger
	}
}

func TestRunner_SuccessfulCycle(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Advanced.Transform.CropOverride = []int{10, 20, 30, 40, 50, 60, 70, 80}
	})
	f.scanner.SetPositions(state.Positions{{X: 3, Y: 4}, {X: 5, Y: 6}})
	r := f.runner()

	startRunner(t, r)
	waitFor(t, "リスナー起動後に要求待ちへ戻る", settledWithListener(r))

	if got := f.holder.Outcome().String(); got != "SUCCESS" {
		t.Errorf("結果: got %s, want SUCCESS", got)
	}
	if f.holder.Source().Live() {
		t.Error("成功後のフレームソースはバッファのはず")
	}
	if !f.holder.Device().Keepalive() {
		t.Error("要求待ちに戻った時点で keepalive は true のはず")
	}

	calls := f.scanner.Calls()
	if len(calls) != 1 {
		t.Fatalf("スキャン回数: got %d, want 1", len(calls))
	}
	if !calls[0].Streamlined {
		t.Error("streamlined は true で呼ばれるはず")
	}
	want := config.CropOverride{{X: 10, Y: 20, W: 30, H: 40}, {X: 50, Y: 60, W: 70, H: 80}}
	if calls[0].Crop == nil || *calls[0].Crop != want {
		t.Errorf("切り抜き領域: got %+v, want %+v", calls[0].Crop, want)
	}

	reports := f.reporter.Reports()
	if len(reports) != 1 || reports[0][1] != (image.Point{X: 5, Y: 6}) {
		t.Errorf("報告内容: got %+v", reports)
	}
	if f.reporter.Restarts() != 0 {
		t.Error("初回スキャンで再起動通知が送られた")
	}

	status := r.Status()
	if status.Mode != ModeListening || status.FrameSource != "buffer" || status.Cycles != 1 {
		t.Errorf("状態: got %+v", status)
	}
}

func TestRunner_FailedScan(t *testing.T) {
	f := newFixture(t, nil, errors.New("LEDが見つかりません"))
	f.holder.SetLive(false)
	r := f.runner()

	startRunner(t, r)
	waitFor(t, "スキャン失敗後に要求待ちへ戻る", settledAfterScans(r, f.scanner, 1))

	if got := f.holder.Outcome().String(); got != "FAIL" {
		t.Errorf("結果: got %s, want FAIL", got)
	}
	if !f.holder.Source().Live() {
		t.Error("失敗後のフレームソースはライブのまま")
	}
	if !f.holder.Device().Keepalive() {
		t.Error("要求待ちに戻った時点で keepalive は true のはず")
	}
	if len(f.reporter.Reports()) != 0 {
		t.Error("失敗時に位置が報告された")
	}
	if f.listener.Starts() != 0 {
		t.Error("失敗時にリスナーが起動された")
	}

	// 要求がなければ再スキャンしない
	time.Sleep(20 * time.Millisecond)
	if n := len(f.scanner.Calls()); n != 1 {
		t.Errorf("要求なしで再スキャンされた: %d", n)
	}
}

func TestRunner_FailThenRecalibrate(t *testing.T) {
	f := newFixture(t, nil, errors.New("LEDが見つかりません"))
	r := f.runner()

	startRunner(t, r)
	waitFor(t, "1回目のスキャン", settledAfterScans(r, f.scanner, 1))
	if got := f.holder.Outcome().String(); got != "FAIL" {
		t.Fatalf("結果: got %s, want FAIL", got)
	}

	f.scanner.Push(nil)

	if err := f.marker.Create(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "2回目のスキャン", func() bool {
		return len(f.scanner.Calls()) == 2 && settledWithListener(r)()
	})

	if got := f.holder.Outcome().String(); got != "SUCCESS" {
		t.Errorf("結果: got %s, want SUCCESS", got)
	}
	if f.marker.Exists() {
		t.Error("マーカーが消費されていない")
	}
	if f.reporter.Restarts() != 1 {
		t.Errorf("再起動通知: got %d, want 1", f.reporter.Restarts())
	}
}

func TestRunner_RestartStopsPreviousListener(t *testing.T) {
	f := newFixture(t, nil)
	r := f.runner()

	startRunner(t, r)
	waitFor(t, "1回目のリスナー", settledWithListener(r))

	if err := f.marker.Create(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "2回目のリスナー", func() bool {
		return len(f.scanner.Calls()) == 2 && settledWithListener(r)()
	})

	if f.listener.Starts() != 2 {
		t.Errorf("リスナー起動回数: got %d, want 2", f.listener.Starts())
	}
	if f.listener.Exits() != 1 {
		t.Errorf("リスナー終了回数: got %d, want 1", f.listener.Exits())
	}
	if !f.holder.Device().Keepalive() {
		t.Error("keepalive は true に戻っているはず")
	}
}

func TestRunner_RejectsConcurrentStart(t *testing.T) {
	f := newFixture(t, nil)
	r := f.runner()

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		r.Wait()
	}()

	var started atomic.Int32
	var rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Start(ctx)
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrAlreadyRunning):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if started.Load() != 1 || rejected.Load() != 7 {
		t.Errorf("started=%d rejected=%d, want 1 and 7", started.Load(), rejected.Load())
	}
	if err := r.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Run while running: got %v, want ErrAlreadyRunning", err)
	}
}

func TestRunner_StopOnCancel(t *testing.T) {
	f := newFixture(t, nil)
	r := f.runner()

	ctx, cancel := context.WithCancel(context.Background())
	if err := r.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "リスナー起動", settledWithListener(r))

	cancel()
	r.Wait()

	if r.Running() {
		t.Error("キャンセル後もループが動作中")
	}
	if f.listener.Exits() != f.listener.Starts() {
		t.Errorf("リスナーが残っている: starts=%d exits=%d", f.listener.Starts(), f.listener.Exits())
	}
	if f.fatal() != nil {
		t.Errorf("キャンセルで致命的エラー扱いになった: %v", f.fatal())
	}

	// 停止後は再び開始できる
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer func() {
		cancel2()
		r.Wait()
	}()
	if err := r.Start(ctx2); err != nil {
		t.Fatalf("再開始に失敗: %v", err)
	}
}

func TestRunner_LeftoverMarkerIsDiscarded(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.marker.Create(); err != nil {
		t.Fatal(err)
	}
	r := f.runner()

	startRunner(t, r)
	waitFor(t, "リスナー起動", settledWithListener(r))

	time.Sleep(20 * time.Millisecond)
	if n := len(f.scanner.Calls()); n != 1 {
		t.Errorf("残っていたマーカーで再スキャンされた: %d", n)
	}
	if f.reporter.Restarts() != 0 {
		t.Error("残っていたマーカーで再起動通知が送られた")
	}
}

func TestRunner_ReportFailure(t *testing.T) {
	t.Run("abort", func(t *testing.T) {
		f := newFixture(t, nil)
		reportErr := errors.New("connection refused")
		f.reporter.SetReportError(reportErr)
		r := f.runner()

		startRunner(t, r)
		waitFor(t, "致命的エラー", func() bool { return f.fatal() != nil })

		if !errors.Is(f.fatal(), reportErr) {
			t.Errorf("致命的エラー: got %v", f.fatal())
		}
		r.Wait()
		if f.listener.Starts() != 0 {
			t.Error("報告失敗後にリスナーが起動された")
		}
	})

	t.Run("recover", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) {
			cfg.Lifecycle.ReportFailure = string(PolicyRecover)
		})
		f.reporter.SetReportError(errors.New("connection refused"))
		r := f.runner()

		startRunner(t, r)
		waitFor(t, "報告失敗後に要求待ちへ戻る", settledAfterScans(r, f.scanner, 1))

		if f.fatal() != nil {
			t.Errorf("recover なのに致命的エラー: %v", f.fatal())
		}
		if got := f.holder.Outcome().String(); got != "FAIL" {
			t.Errorf("結果: got %s, want FAIL", got)
		}
		if !f.holder.Source().Live() {
			t.Error("報告失敗後のフレームソースはライブのはず")
		}
		if f.listener.Starts() != 0 {
			t.Error("報告失敗後にリスナーが起動された")
		}
	})
}

func TestRunner_ListenerFailure(t *testing.T) {
	t.Run("abort", func(t *testing.T) {
		f := newFixture(t, nil)
		listenErr := errors.New("stream closed")
		f.listener.SetExit(listenErr, 5*time.Millisecond)
		r := f.runner()

		startRunner(t, r)
		waitFor(t, "致命的エラー", func() bool { return f.fatal() != nil })

		if !errors.Is(f.fatal(), listenErr) {
			t.Errorf("致命的エラー: got %v", f.fatal())
		}
	})

	t.Run("recover", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.Config) {
			cfg.Lifecycle.ListenerFailure = string(PolicyRecover)
		})
		f.listener.SetExit(errors.New("stream closed"), 5*time.Millisecond)
		r := f.runner()

		startRunner(t, r)
		waitFor(t, "リスナー失敗後の再スキャン", func() bool {
			return len(f.scanner.Calls()) >= 2
		})

		if f.fatal() != nil {
			t.Errorf("recover なのに致命的エラー: %v", f.fatal())
		}
		if f.reporter.Restarts() != 0 {
			t.Error("リスナー失敗による再スキャンで再起動通知が送られた")
		}
	})
}

// failOnceListener は1回目だけ after 経過後にエラーで戻り、2回目以降は停止要求まで待つ
type failOnceListener struct {
	after time.Duration
	err   error
	calls atomic.Int32
}

func (l *failOnceListener) ListenEvents(ctx context.Context, device *state.Device, _ config.UnityConfig, _ *config.Config, _ int, _ *state.FrameBuffer) error {
	first := l.calls.Add(1) == 1

	var exitCh <-chan time.Time
	if first {
		exitCh = time.After(l.after)
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-exitCh:
			return l.err
		case <-ticker.C:
			if !device.Keepalive() {
				return nil
			}
		}
	}
}

func TestRunner_MarkerAndListenerFailureInSamePoll(t *testing.T) {
	const poll = 150 * time.Millisecond
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Lifecycle.ListenerFailure = string(PolicyRecover)
		cfg.Lifecycle.TriggerPoll = poll
	})
	listener := &failOnceListener{after: 30 * time.Millisecond, err: errors.New("stream closed")}
	r := NewRunner(Options{
		Config:   f.cfg,
		Holder:   f.holder,
		Marker:   f.marker,
		Scanner:  f.scanner,
		Reporter: f.reporter,
		Listener: listener,
		Hub:      f.hub,
		Fatal: func(_ string, err error) {
			t.Errorf("recover なのに致命的エラー: %v", err)
		},
	})

	startRunner(t, r)
	waitFor(t, "1回目のリスナー", settledWithListener(r))

	// リスナーの失敗と同じ待機間隔の中でマーカーを置く
	if err := f.marker.Create(); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "マーカーによる再スキャン", func() bool {
		return len(f.scanner.Calls()) >= 2 && settledWithListener(r)()
	})

	// 古い失敗記録による余計な再スキャンが起きないこと
	time.Sleep(3 * poll)

	if got := len(f.scanner.Calls()); got != 2 {
		t.Errorf("スキャン回数: got %d, want 2", got)
	}
	if got := f.reporter.Restarts(); got != 1 {
		t.Errorf("再起動通知: got %d, want 1", got)
	}
	if got := len(f.reporter.Reports()); got != 2 {
		t.Errorf("位置の送信回数: got %d, want 2", got)
	}
	if got := listener.calls.Load(); got != 2 {
		t.Errorf("リスナー起動回数: got %d, want 2", got)
	}
	if !r.Status().ListenerActive {
		t.Error("2回目のリスナーは動作中のはず")
	}
}

func TestRunner_PublishesPhases(t *testing.T) {
	f := newFixture(t, nil)
	ch, unsubscribe := f.hub.Subscribe()
	defer unsubscribe()
	r := f.runner()

	startRunner(t, r)

	want := []Phase{
		PhaseAwaitingTrigger,
		PhaseScanning,
		PhaseReportingSuccess,
		PhaseArmListener,
		PhaseAwaitingListenerExit,
		PhaseAwaitingTrigger,
	}
	for i, w := range want {
		select {
		case e := <-ch:
			if Phase(e.Phase) != w {
				t.Fatalf("イベント%d: got %s, want %s", i, e.Phase, w)
			}
			if e.RunID == "" {
				t.Errorf("イベント%d: run_id が空", i)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("イベント%d (%s) が届かない", i, w)
		}
	}
}

func TestRunner_ListenerFillsBuffer(t *testing.T) {
	f := newFixture(t, nil)
	pattern := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range pattern.Pix {
		pattern.Pix[i] = 222
	}
	f.listener.SetFrames(pattern, pattern)
	r := f.runner()

	startRunner(t, r)
	waitFor(t, "リスナー起動", settledWithListener(r))
	waitFor(t, "バッファ更新", func() bool {
		img, src, err := f.holder.Snapshot(state.Cam1)
		if err != nil || src != state.SourceBuffer || img == nil {
			return false
		}
		return img.(*image.Gray).Pix[0] == 222
	})
}

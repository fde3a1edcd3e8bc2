package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"opensauce/internal/config"
	"opensauce/internal/events"
	"opensauce/internal/metrics"
	"opensauce/internal/restart"
	"opensauce/internal/state"
)

// スキャン時は常に streamlined モードを使う
const streamlined = true

// Options はRunnerの依存関係
type Options struct {
	Config   *config.Config
	Holder   *state.Holder
	Marker   *restart.Marker
	Scanner  Scanner
	Reporter Reporter
	Listener EventListener

	// Hub は状態遷移の配信先（任意）
	Hub *events.Hub

	// Fatal は abort ポリシーで呼ばれる。既定ではログを出してプロセスを終了する
	Fatal func(msg string, err error)
}

// Runner はキャリブレーションループを実行する
type Runner struct {
	cfg      *config.Config
	holder   *state.Holder
	marker   *restart.Marker
	scanner  Scanner
	reporter Reporter
	events   EventListener
	hub      *events.Hub
	fatal    func(msg string, err error)

	reportPolicy   FailurePolicy
	listenerPolicy FailurePolicy
	triggerPoll    time.Duration
	handshakePoll  time.Duration

	phase *phaseMachine

	mu             sync.Mutex
	running        bool
	runID          string
	cycles         int
	listener       *Listener
	listenerFailed bool
	done           chan struct{}
}

// NewRunner は新しいRunnerを作成する
func NewRunner(opts Options) *Runner {
	r := &Runner{
		cfg:            opts.Config,
		holder:         opts.Holder,
		marker:         opts.Marker,
		scanner:        opts.Scanner,
		reporter:       opts.Reporter,
		events:         opts.Listener,
		hub:            opts.Hub,
		fatal:          opts.Fatal,
		reportPolicy:   FailurePolicy(opts.Config.Lifecycle.ReportFailure),
		listenerPolicy: FailurePolicy(opts.Config.Lifecycle.ListenerFailure),
		triggerPoll:    opts.Config.Lifecycle.TriggerPoll,
		handshakePoll:  opts.Config.Lifecycle.HandshakePoll,
	}
	if r.fatal == nil {
		r.fatal = func(msg string, err error) {
			log.Fatal().Err(err).Msg(msg)
		}
	}
	r.phase = newPhaseMachine(r.onEnter)
	return r
}

// Start はループを専用のゴルーチンで開始し、すぐに戻る
func (r *Runner) Start(ctx context.Context) error {
	if err := r.acquire(); err != nil {
		return err
	}

	go func() {
		if err := r.loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("キャリブレーションループが終了しました")
		}
	}()
	return nil
}

// Run はループを呼び出し元のゴルーチンで実行する
// ctx が終了するまで戻らない
func (r *Runner) Run(ctx context.Context) error {
	if err := r.acquire(); err != nil {
		return err
	}
	return r.loop(ctx)
}

// Running はループが動作中か判定する
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Wait はループの終了を待つ。動作していない場合はすぐに戻る
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()

	if done != nil {
		<-done
	}
}

// Status はループの現在の状態を返す
func (r *Runner) Status() Status {
	r.mu.Lock()
	running := r.running
	runID := r.runID
	cycles := r.cycles
	listenerActive := r.listener != nil && r.listener.Active()
	r.mu.Unlock()

	phase := r.phase.current()
	mode := ModeIdle
	switch {
	case running && phase.scanning():
		mode = ModeScanning
	case listenerActive:
		mode = ModeListening
	}

	source := state.SourceLive
	if fs := r.holder.Source(); fs != nil {
		source = fs.Current()
	}

	return Status{
		Running:        running,
		RunID:          runID,
		Phase:          phase,
		Mode:           mode,
		Cycles:         cycles,
		Outcome:        r.holder.Outcome().String(),
		FrameSource:    source.String(),
		ListenerActive: listenerActive,
	}
}

func (r *Runner) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}
	r.running = true
	r.runID = uuid.NewString()
	r.cycles = 0
	r.listenerFailed = false
	r.done = make(chan struct{})
	r.phase.reset()
	return nil
}

func (r *Runner) release() {
	r.mu.Lock()
	l := r.listener
	r.listener = nil
	r.mu.Unlock()

	// 親コンテキスト終了でリスナーも止まるので終了を待つ
	if l != nil {
		l.Halt()
		<-l.Done()
	}

	r.mu.Lock()
	r.running = false
	close(r.done)
	r.mu.Unlock()
}

// loop はキャリブレーションループ本体
func (r *Runner) loop(ctx context.Context) error {
	defer r.release()

	r.mu.Lock()
	logger := log.With().Str("run_id", r.runID).Logger()
	r.mu.Unlock()

	// 切り抜き領域はループ開始時に一度だけ求める
	crop := r.cfg.CropOverride()

	// 前回の実行で残ったマーカーは破棄する
	if _, err := r.marker.Consume(); err != nil {
		return err
	}

	logger.Info().Msg("キャリブレーションループを開始します")
	r.publish(r.phase.current())

	first := true
	for {
		restartRequested, err := r.awaitTrigger(ctx, first)
		if err != nil {
			return err
		}
		first = false

		if err := r.cycle(ctx, logger, restartRequested, crop); err != nil {
			return err
		}
	}
}

// awaitTrigger は初回、マーカーの出現、またはリスナー失敗（recover ポリシー）まで待つ
// マーカーによる場合は true を返す
func (r *Runner) awaitTrigger(ctx context.Context, first bool) (bool, error) {
	if first {
		return false, nil
	}

	ticker := time.NewTicker(r.triggerPoll)
	defer ticker.Stop()

	for {
		if r.marker.Exists() {
			return true, nil
		}
		if r.takeListenerFailure() {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle は1回のキャリブレーションを実行する
func (r *Runner) cycle(ctx context.Context, logger zerolog.Logger, restartRequested bool, crop *config.CropOverride) error {
	r.mu.Lock()
	r.cycles++
	cycle := r.cycles
	r.mu.Unlock()

	logger = logger.With().Int("cycle", cycle).Logger()
	r.mustFire(evTrigger)
	logger.Info().Msg("再スキャンします")

	device := r.holder.Device()

	if restartRequested {
		if _, err := r.marker.Consume(); err != nil {
			return err
		}
		metrics.RecordRestart()
		logger.Info().Msg("マーカーを検出したため再起動を通知します")
		r.notifyRestart(ctx, logger)
	}

	// 前回のリスナーを停止させ、終了を確認してから基準値に戻す
	if err := r.stopListener(ctx, logger); err != nil {
		return err
	}
	// 停止済みのリスナーの失敗はこのスキャンで片付く
	r.takeListenerFailure()
	device.SetKeepalive(true)

	// スキャン中はカメラの生映像を配信する
	r.holder.SetLive(true)

	if err := r.scanner.Scan(ctx, r.cfg, device, streamlined, crop); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error().Err(err).Msg("スキャンに失敗しました")
		metrics.RecordScan(false)
		r.holder.Outcome().Set(false)
		r.mustFire(evScanFailed)
		r.mustFire(evSettled)
		return nil
	}

	metrics.RecordScan(true)
	r.holder.Outcome().Set(true)
	r.mustFire(evScanOK)

	logger.Info().Msg("現在の位置を送信します")
	if err := r.reporter.ReportPositions(ctx, r.cfg.Unity, device.Positions()); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.reportPolicy != PolicyRecover {
			r.fatal("位置の送信に失敗しました", err)
			return fmt.Errorf("位置の送信に失敗: %w", err)
		}
		logger.Error().Err(err).Msg("位置の送信に失敗しました。スキャン失敗として扱います")
		r.holder.Outcome().Set(false)
		r.mustFire(evReportFailed)
		r.mustFire(evSettled)
		return nil
	}
	r.mustFire(evReported)

	// 以後のフレームの鮮度はリスナーが持つ
	r.holder.SetLive(false)
	r.spawnListener(ctx, logger)
	r.mustFire(evArmed)

	if err := r.awaitKeepalive(ctx, device); err != nil {
		return err
	}
	device.SetKeepalive(true)
	r.mustFire(evSettled)
	return nil
}

// notifyRestart は再起動を外部システムに通知する。失敗は記録するだけ
func (r *Runner) notifyRestart(ctx context.Context, logger zerolog.Logger) {
	if err := r.reporter.NotifyRestart(ctx, r.cfg.Unity.IP, r.cfg.ReportPort()); err != nil {
		logger.Warn().Err(err).Msg("再起動の通知に失敗しました")
	}
}

// spawnListener はイベントリスナーを起動する
func (r *Runner) spawnListener(ctx context.Context, logger zerolog.Logger) {
	id := uuid.NewString()
	logger.Info().Str("listener_id", id).Msg("リスナーを起動します")

	l := startListener(ctx, id, r.events, r.holder.Device(), r.cfg, r.holder.Buffer(), r.onListenerExit)

	r.mu.Lock()
	r.listener = l
	r.mu.Unlock()
}

// onListenerExit はリスナー終了時に呼ばれる
func (r *Runner) onListenerExit(l *Listener, err error, halted bool) {
	metrics.RecordListenerExit(err)
	logger := log.With().Str("listener_id", l.ID()).Logger()

	if err == nil || halted {
		logger.Info().Msg("リスナーが終了しました")
		return
	}

	if r.listenerPolicy != PolicyRecover {
		r.fatal("リスナーがエラーで終了しました", err)
		return
	}

	logger.Error().Err(err).Msg("リスナーがエラーで終了しました。再スキャンします")
	r.mu.Lock()
	r.listenerFailed = true
	r.mu.Unlock()
}

// takeListenerFailure はリスナー失敗の記録を取り出して消す
func (r *Runner) takeListenerFailure() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	failed := r.listenerFailed
	r.listenerFailed = false
	return failed
}

// stopListener は動作中のリスナーに停止を要求し、終了まで待つ
func (r *Runner) stopListener(ctx context.Context, logger zerolog.Logger) error {
	r.mu.Lock()
	l := r.listener
	r.listener = nil
	r.mu.Unlock()

	if l == nil {
		return nil
	}

	logger.Info().Str("listener_id", l.ID()).Msg("リスナーの停止を待っています")
	l.Halt()
	if err := r.awaitListenerExit(ctx, l); err != nil {
		return err
	}
	if err := l.Err(); err != nil {
		logger.Debug().Err(err).Str("listener_id", l.ID()).Msg("停止前にリスナーはエラーで終了していました")
	}
	return nil
}

// awaitListenerExit はハンドシェイク間隔でリスナーの終了を確認する
func (r *Runner) awaitListenerExit(ctx context.Context, l *Listener) error {
	ticker := time.NewTicker(r.handshakePoll)
	defer ticker.Stop()

	device := r.holder.Device()
	for {
		if device.Keepalive() {
			<-l.Done()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// awaitKeepalive は keepalive が true になるまで待つ
func (r *Runner) awaitKeepalive(ctx context.Context, device *state.Device) error {
	ticker := time.NewTicker(r.handshakePoll)
	defer ticker.Stop()

	for !device.Keepalive() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// mustFire は遷移表に定義された遷移を発行する
func (r *Runner) mustFire(event string) {
	if err := r.phase.fire(event); err != nil {
		panic(fmt.Sprintf("lifecycle: invalid transition %q from %s: %v", event, r.phase.current(), err))
	}
}

// onEnter は状態に入るたびに呼ばれる
func (r *Runner) onEnter(p Phase) {
	log.Debug().Str("phase", string(p)).Msg("状態遷移")
	r.publish(p)
}

func (r *Runner) publish(p Phase) {
	if r.hub == nil {
		return
	}
	r.mu.Lock()
	runID := r.runID
	r.mu.Unlock()
	r.hub.Publish(events.Event{Type: "phase", Phase: string(p), RunID: runID})
}

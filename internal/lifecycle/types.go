package lifecycle

import (
	"context"
	"errors"

	"opensauce/internal/config"
	"opensauce/internal/state"
)

// ErrAlreadyRunning はループが既に動作中の場合に返される
var ErrAlreadyRunning = errors.New("lifecycle: calibration loop already running")

// Scanner はカメラ画像から位置を求めるスキャン処理
type Scanner interface {
	// Scan は完了までブロックし、device のフレームと位置を更新する
	Scan(ctx context.Context, cfg *config.Config, device *state.Device, streamlined bool, crop *config.CropOverride) error
}

// Reporter は外部システムへの位置報告と再起動通知を行う
type Reporter interface {
	ReportPositions(ctx context.Context, opts config.UnityConfig, positions state.Positions) error
	NotifyRestart(ctx context.Context, ip string, port int) error
}

// EventListener は外部システムからのイベントを受信し続ける
//
// 停止要求（ctx のキャンセル、または device の keepalive が false）か
// 外部システムからの終了指示で戻る。buffer はストリーミング無効時 nil。
type EventListener interface {
	ListenEvents(ctx context.Context, device *state.Device, opts config.UnityConfig, cfg *config.Config, port int, buffer *state.FrameBuffer) error
}

// FailurePolicy はバックグラウンド処理の失敗時の扱い
type FailurePolicy string

const (
	// PolicyAbort はプロセスを終了させる
	PolicyAbort FailurePolicy = "abort"
	// PolicyRecover は失敗を記録して次のサイクルに進む
	PolicyRecover FailurePolicy = "recover"
)

// Mode は外部から見たループの大まかな状態
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeScanning  Mode = "scanning"
	ModeListening Mode = "listening"
)

// Status はループの現在の状態
type Status struct {
	Running        bool   `json:"running"`
	RunID          string `json:"run_id,omitempty"`
	Phase          Phase  `json:"phase"`
	Mode           Mode   `json:"mode"`
	Cycles         int    `json:"cycles"`
	Outcome        string `json:"outcome"`
	FrameSource    string `json:"frame_source"`
	ListenerActive bool   `json:"listener_active"`
}

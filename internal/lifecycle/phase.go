package lifecycle

import (
	"context"

	"github.com/looplab/fsm"
)

// Phase はループの状態
type Phase string

const (
	PhaseAwaitingTrigger      Phase = "awaiting_trigger"
	PhaseScanning             Phase = "scanning"
	PhaseReportingSuccess     Phase = "reporting_success"
	PhaseReportingFailure     Phase = "reporting_failure"
	PhaseArmListener          Phase = "arm_listener"
	PhaseAwaitingListenerExit Phase = "awaiting_listener_exit"
)

// 遷移イベント
const (
	evTrigger      = "trigger"
	evScanOK       = "scan_ok"
	evScanFailed   = "scan_failed"
	evReported     = "reported"
	evReportFailed = "report_failed"
	evArmed        = "armed"
	evSettled      = "settled"
)

// phaseMachine はループの状態遷移を管理する
type phaseMachine struct {
	fsm *fsm.FSM
}

// newPhaseMachine は新しいphaseMachineを作成する
// onEnter は状態に入るたびに呼ばれる
func newPhaseMachine(onEnter func(Phase)) *phaseMachine {
	f := fsm.NewFSM(
		string(PhaseAwaitingTrigger),
		fsm.Events{
			{Name: evTrigger, Src: []string{string(PhaseAwaitingTrigger)}, Dst: string(PhaseScanning)},
			{Name: evScanOK, Src: []string{string(PhaseScanning)}, Dst: string(PhaseReportingSuccess)},
			{Name: evScanFailed, Src: []string{string(PhaseScanning)}, Dst: string(PhaseReportingFailure)},
			{Name: evReported, Src: []string{string(PhaseReportingSuccess)}, Dst: string(PhaseArmListener)},
			{Name: evReportFailed, Src: []string{string(PhaseReportingSuccess)}, Dst: string(PhaseReportingFailure)},
			{Name: evArmed, Src: []string{string(PhaseArmListener)}, Dst: string(PhaseAwaitingListenerExit)},
			{Name: evSettled, Src: []string{string(PhaseAwaitingListenerExit), string(PhaseReportingFailure)}, Dst: string(PhaseAwaitingTrigger)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if onEnter != nil {
					onEnter(Phase(e.Dst))
				}
			},
		},
	)
	return &phaseMachine{fsm: f}
}

// fire は遷移イベントを発行する
func (p *phaseMachine) fire(event string) error {
	return p.fsm.Event(context.Background(), event)
}

// reset は状態を awaiting_trigger に戻す
func (p *phaseMachine) reset() {
	p.fsm.SetState(string(PhaseAwaitingTrigger))
}

// current は現在の状態を返す
func (p *phaseMachine) current() Phase {
	return Phase(p.fsm.Current())
}

// scanning はスキャン中の状態か判定する
func (p Phase) scanning() bool {
	switch p {
	case PhaseScanning, PhaseReportingSuccess, PhaseReportingFailure:
		return true
	}
	return false
}

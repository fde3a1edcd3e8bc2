package lifecycle

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"opensauce/internal/config"
	"opensauce/internal/state"
)

func TestListener_ErrorExit(t *testing.T) {
	cfg := config.Default()
	device := state.NewDevice(image.NewGray(image.Rect(0, 0, 2, 2)))
	listenErr := errors.New("stream closed")

	el := NewMockEventListener()
	el.SetExit(listenErr, 5*time.Millisecond)

	var exited atomic.Bool
	var gotHalted atomic.Bool
	l := startListener(context.Background(), "l-1", el, device, cfg, nil, func(_ *Listener, err error, halted bool) {
		if !errors.Is(err, listenErr) {
			t.Errorf("onExit のエラー: got %v", err)
		}
		gotHalted.Store(halted)
		exited.Store(true)
	})

	if l.Err() != nil {
		t.Error("終了前の Err は nil のはず")
	}

	select {
	case <-l.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("リスナーが終了しない")
	}

	if !exited.Load() {
		t.Error("done が閉じた時点で onExit は呼ばれているはず")
	}
	if gotHalted.Load() {
		t.Error("自発的な終了は停止要求として扱わない")
	}
	if !errors.Is(l.Err(), listenErr) {
		t.Errorf("Err: got %v, want %v", l.Err(), listenErr)
	}
	if l.Active() {
		t.Error("終了後は Active が false のはず")
	}
	if !device.Keepalive() {
		t.Error("終了後は keepalive が true のはず")
	}
}

func TestListener_Halt(t *testing.T) {
	cfg := config.Default()
	device := state.NewDevice(image.NewGray(image.Rect(0, 0, 2, 2)))

	var gotHalted atomic.Bool
	l := startListener(context.Background(), "l-2", NewMockEventListener(), device, cfg, nil, func(_ *Listener, _ error, halted bool) {
		gotHalted.Store(halted)
	})

	if !l.Active() {
		t.Fatal("起動直後は Active のはず")
	}
	l.Halt()

	select {
	case <-l.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("停止要求後にリスナーが終了しない")
	}

	if !gotHalted.Load() {
		t.Error("停止要求による終了として扱われていない")
	}
	if l.Err() != nil {
		t.Errorf("Err: got %v, want nil", l.Err())
	}
	if !device.Keepalive() {
		t.Error("終了後は keepalive が true に戻るはず")
	}
}

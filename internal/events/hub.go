// Package events はライフサイクルの状態変化を観測者に配信する
package events

import (
	"sync"
	"time"
)

// Event は観測者に配信される1件のイベント
type Event struct {
	Type  string    `json:"type"`
	Phase string    `json:"phase,omitempty"`
	RunID string    `json:"run_id,omitempty"`
	Time  time.Time `json:"time"`
}

// Hub は購読者ごとのチャンネルへイベントを配る
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
	size int
}

// NewHub は新しいHubを作成する
// size は購読者ごとのバッファ長
func NewHub(size int) *Hub {
	if size <= 0 {
		size = 16
	}
	return &Hub{
		subs: make(map[chan Event]struct{}),
		size: size,
	}
}

// Subscribe は購読を開始し、イベントチャンネルと解除関数を返す
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.size)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish はイベントを全購読者に送る。ブロックしない
// 購読者のバッファが一杯の場合は最も古いイベントを捨てる
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- e:
			default:
			}
		}
	}
}

// Subscribers は現在の購読者数を返す
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

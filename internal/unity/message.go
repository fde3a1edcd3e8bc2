package unity

import (
	"github.com/goccy/go-json"

	"opensauce/internal/state"
)

// メッセージ種別
const (
	TypePositions = "positions"
	TypeAck       = "ack"
	TypeError     = "error"
	TypeRestart   = "restart"
	TypeSubscribe = "subscribe"
	TypeFrame     = "frame"
	TypeStop      = "stop"
)

// Message は1行分のメッセージ
type Message struct {
	Type      string     `json:"type"`
	Positions []Position `json:"positions,omitempty"`
	Message   string     `json:"message,omitempty"`
}

// Position は1台のカメラで検出した位置
type Position struct {
	Camera string `json:"camera"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
}

func positionsMessage(p state.Positions) Message {
	m := Message{Type: TypePositions}
	for _, cam := range state.Cameras {
		m.Positions = append(m.Positions, Position{Camera: cam.String(), X: p[cam].X, Y: p[cam].Y})
	}
	return m
}

// encodeLine はメッセージを改行付きのJSONにする
func encodeLine(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func decodeLine(line []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(line, &m)
	return m, err
}

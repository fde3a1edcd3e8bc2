// Package unity は位置情報を受け取る外部システムとの通信を行う
//
// 通信は1行1メッセージのJSONをTCPで送受信する。
//
//	→ {"type":"positions","positions":[{"camera":"cam-1","x":10,"y":20}, ...]}
//	← {"type":"ack"} または {"type":"error","message":"..."}
//	→ {"type":"restart"}
//	→ {"type":"subscribe"}
//	← {"type":"frame"} / {"type":"stop"}
package unity

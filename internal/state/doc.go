// Package state はプロセス全体で共有されるデバイス状態を保持する
//
// # 責務
// - 2台のカメラのライブフレームと keepalive フラグ (Device)
// - イベントリスナーが更新する「最後に正常だった」フレーム (FrameBuffer)
// - ストリーミングが読むべきフレームソースの切り替え (FrameSource)
// - 直近のキャリブレーション結果 (Outcome)
// - 上記をまとめて参照させる外側の保持者 (Holder)
//
// # ロック順序
// 各構造体はロックを1つだけ持つ。複数の構造体にまたがる操作は必ず
//
//	Holder → FrameSource → Device / FrameBuffer
//
// の順でロックを取得する。ロックを保持したままI/O、スキャン、スリープ、
// JPEGエンコードを行ってはならない。読み出しは常にロック下でのコピーを返す。
package state

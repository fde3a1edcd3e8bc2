// Package lifecycle はキャリブレーションのライフサイクルを駆動する
//
// # 責務
// - 初回起動または再キャリブレーション要求でスキャンを開始する
// - スキャン成功時に位置を報告し、イベントリスナーを起動する
// - スキャン失敗時は結果を記録して次の要求を待つ
// - ストリーミングが読むフレームソースを切り替える
//
// # 状態遷移
//
//	awaiting_trigger → scanning → reporting_success → arm_listener → awaiting_listener_exit → awaiting_trigger
//	                            ↘ reporting_failure → awaiting_trigger
//
// # 仕様
//   - ループはプロセスに1つだけ。二重起動は ErrAlreadyRunning で拒否する
//   - 要求待ちとハンドシェイク待ちは固定間隔のポーリングで行う
//   - リスナーは1サイクルにつき最大1つ。次のスキャン前に停止させる
//   - 報告失敗・リスナー失敗の扱いは FailurePolicy で選ぶ（既定は abort）
package lifecycle

// Package server はHTTPサーバーを管理します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - キャリブレーションの開始と再キャリブレーション要求の受け付け
//   - カメラ映像のMJPEG配信
//   - 状態遷移のSSE配信とメトリクスの公開
//   - 静的ファイル（HTML/CSS/JS）の配信
//
// 仕様:
//   - ginを使用
//   - 静的ファイルはバイナリに埋め込む。設定で外部ディレクトリに切り替え可能
//   - 複数クライアントの同時接続をサポート
package server

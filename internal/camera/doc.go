// Package camera は2台のカメラからフレームを取得する
//
// # 責務
// - 設定されたドライバに応じたフレーム取得（Grabber）
// - V4L2デバイスの検出と事前確認
//
// # ドライバ
// - ffmpeg: ffmpeg で1フレームずつキャプチャする
// - v4l2: blackjack/webcam で直接ストリーミングする（Linuxのみ）
// - static: 画像ファイルまたは生成したテストパターンを返す
//
// # 前提要件
//   - ffmpeg: ffmpeg ドライバで使用
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - v4l-utils: カメラ名の取得に使用
//     Ubuntu/Debian: sudo apt install v4l-utils
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera

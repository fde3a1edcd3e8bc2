// Package stream はカメラ映像をMJPEGマルチパートとして配信する
//
// 各ティックで Holder からフレームソースに応じたフレームを1枚コピーし、
// ロックを解放してからJPEGにエンコードする。エンコードに失敗したティックは
// 読み飛ばし、ストリームは終了しない。
package stream

// Package metrics はキャリブレーションとストリーミングのPrometheusメトリクスを保持する
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	scans = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opensauce",
			Subsystem: "lifecycle",
			Name:      "scans_total",
			Help:      "Scan attempts by result.",
		},
		[]string{"result"},
	)
	restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "opensauce",
			Subsystem: "lifecycle",
			Name:      "restarts_total",
			Help:      "Restart markers consumed.",
		},
	)
	listenerExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opensauce",
			Subsystem: "listener",
			Name:      "exits_total",
			Help:      "Event listener exits by result.",
		},
		[]string{"result"},
	)
	streamClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "opensauce",
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected MJPEG observers.",
		},
		[]string{"camera"},
	)
	streamFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opensauce",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "MJPEG parts emitted.",
		},
		[]string{"camera"},
	)
	encodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opensauce",
			Subsystem: "stream",
			Name:      "encode_errors_total",
			Help:      "Ticks skipped because JPEG encoding failed.",
		},
		[]string{"camera"},
	)
)

// Register はコレクタをデフォルトレジストリに一度だけ登録する
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(scans, restarts, listenerExits, streamClients, streamFrames, encodeErrors)
	})
}

// RecordScan はスキャン結果を記録する
func RecordScan(ok bool) {
	Register()
	scans.WithLabelValues(result(ok)).Inc()
}

// RecordRestart は再キャリブレーション要求の消費を記録する
func RecordRestart() {
	Register()
	restarts.Inc()
}

// RecordListenerExit はリスナーの終了を記録する
func RecordListenerExit(err error) {
	Register()
	listenerExits.WithLabelValues(result(err == nil)).Inc()
}

// StreamOpened は観測者の接続を記録し、切断時に呼ぶ関数を返す
func StreamOpened(camera string) func() {
	Register()
	g := streamClients.WithLabelValues(camera)
	g.Inc()
	return g.Dec
}

// RecordFrame は送出したフレームを記録する
func RecordFrame(camera string) {
	Register()
	streamFrames.WithLabelValues(camera).Inc()
}

// RecordEncodeError はエンコード失敗でスキップしたティックを記録する
func RecordEncodeError(camera string) {
	Register()
	encodeErrors.WithLabelValues(camera).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultPath は設定ファイルの既定パス
const DefaultPath = "svled.toml"

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Cameras   []CameraDevice  `toml:"cameras" yaml:"cameras" validate:"len=2,dive"`
	Unity     UnityConfig     `toml:"unity" yaml:"unity"`
	Advanced  AdvancedConfig  `toml:"advanced" yaml:"advanced"`
	Scan      ScanConfig      `toml:"scan" yaml:"scan"`
	Lifecycle LifecycleConfig `toml:"lifecycle" yaml:"lifecycle"`
	Stream    StreamConfig    `toml:"stream" yaml:"stream"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `toml:"host" yaml:"host"`                                // リッスンするホスト
	Port int    `toml:"port" yaml:"port" validate:"min=1,max=65535"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `toml:"read_timeout" yaml:"read_timeout"`   // 読み込みタイムアウト
	WriteTimeout time.Duration `toml:"write_timeout" yaml:"write_timeout"` // 書き込みタイムアウト

	// 静的ファイルの配信元。空の場合は埋め込みファイルを使う
	StaticDir string `toml:"static_dir" yaml:"static_dir"`
}

// CameraDevice は個別カメラの設定
type CameraDevice struct {
	ID     string `toml:"id" yaml:"id" validate:"required"`                                   // カメラID
	Driver string `toml:"driver" yaml:"driver" validate:"oneof=ffmpeg v4l2 static"`           // キャプチャ方式
	Device string `toml:"device" yaml:"device" validate:"required_unless=Driver static"`      // デバイスパス (例: /dev/video0)
	Width  int    `toml:"width" yaml:"width" validate:"min=1,max=4096"`                       // 画像幅
	Height int    `toml:"height" yaml:"height" validate:"min=1,max=4096"`                     // 画像高さ
	Image  string `toml:"image" yaml:"image"`                                                 // static ドライバ用の画像ファイル
}

// UnityConfig は位置情報を受け取る外部システムの接続設定
type UnityConfig struct {
	IP          string        `toml:"unity_ip" yaml:"unity_ip" validate:"required,ip"`
	Ports       []int         `toml:"unity_ports" yaml:"unity_ports" validate:"min=1,dive,min=1,max=65535"`
	DialTimeout time.Duration `toml:"dial_timeout" yaml:"dial_timeout" validate:"gt=0"`
}

// AdvancedConfig は通常は変更しない詳細設定
type AdvancedConfig struct {
	Transform TransformConfig `toml:"transform" yaml:"transform"`
}

// TransformConfig はスキャン時の座標変換設定
type TransformConfig struct {
	// x, y, w, h をカメラ1・カメラ2の順に8個並べる
	CropOverride []int `toml:"crop_override" yaml:"crop_override" validate:"omitempty,len=8,dive,min=0"`
}

// ScanConfig はスキャン処理の設定
type ScanConfig struct {
	MinBrightness uint8         `toml:"min_brightness" yaml:"min_brightness"`
	Timeout       time.Duration `toml:"timeout" yaml:"timeout" validate:"gt=0"`
}

// LifecycleConfig はキャリブレーションループの設定
type LifecycleConfig struct {
	MarkerPath      string        `toml:"marker_path" yaml:"marker_path" validate:"required"`
	TriggerPoll     time.Duration `toml:"trigger_poll" yaml:"trigger_poll" validate:"gt=0"`
	HandshakePoll   time.Duration `toml:"handshake_poll" yaml:"handshake_poll" validate:"gt=0"`
	ReportFailure   string        `toml:"report_failure" yaml:"report_failure" validate:"oneof=abort recover"`
	ListenerFailure string        `toml:"listener_failure" yaml:"listener_failure" validate:"oneof=abort recover"`
}

// StreamConfig はMJPEGストリーミングの設定
type StreamConfig struct {
	Enabled  bool          `toml:"enabled" yaml:"enabled"`
	Interval time.Duration `toml:"interval" yaml:"interval" validate:"gt=0"`
	Quality  int           `toml:"quality" yaml:"quality" validate:"min=1,max=100"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Cameras: []CameraDevice{
			{ID: "cam-1", Driver: "ffmpeg", Device: "/dev/video0", Width: 1280, Height: 720},
			{ID: "cam-2", Driver: "ffmpeg", Device: "/dev/video2", Width: 1280, Height: 720},
		},
		Unity: UnityConfig{
			IP:          "127.0.0.1",
			Ports:       []int{5001},
			DialTimeout: 3 * time.Second,
		},
		Scan: ScanConfig{
			MinBrightness: 200,
			Timeout:       30 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			MarkerPath:      "end_loop",
			TriggerPoll:     50 * time.Millisecond,
			HandshakePoll:   500 * time.Microsecond,
			ReportFailure:   "abort",
			ListenerFailure: "abort",
		},
		Stream: StreamConfig{
			Enabled:  true,
			Interval: 33 * time.Millisecond,
			Quality:  80,
		},
	}
}

// Load は設定ファイルを読み込む
// path が空の場合はデフォルト値に環境変数を反映したものを返す
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// decode は拡張子に応じてTOMLまたはYAMLとして読み込む
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("TOMLの解析に失敗: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("YAMLの解析に失敗: %w", err)
		}
	default:
		return fmt.Errorf("サポートされていない設定ファイル形式: %s", path)
	}
	return nil
}

// applyEnvOverrides は環境変数で設定を上書きする
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Lifecycle.MarkerPath = getEnvOrDefault("OPENSAUCE_MARKER", cfg.Lifecycle.MarkerPath)
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ReportPort は外部システムとの通信に使うポート
func (c *Config) ReportPort() int {
	return c.Unity.Ports[0]
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

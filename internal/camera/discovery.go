package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var videoDevicePattern = regexp.MustCompile(`^/dev/video(\d+)$`)

// Discovery はLinux環境でのV4L2デバイス検出を行う
type Discovery struct{}

// NewDiscovery は新しいDiscoveryを作成する
func NewDiscovery() *Discovery {
	return &Discovery{}
}

// ScanDevices はシステム内の利用可能なカメラデバイスを番号順に返す
func (d *Discovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if d.Probe(ctx, match) == nil {
			devices = append(devices, match)
		}
	}
	return devices, nil
}

// Probe はデバイスが開けるV4L2デバイスか確認する
func (d *Discovery) Probe(_ context.Context, device string) error {
	if !videoDevicePattern.MatchString(device) {
		return fmt.Errorf("V4L2デバイスではありません: %s", device)
	}

	if _, err := os.Stat(device); err != nil {
		return fmt.Errorf("デバイスが見つかりません: %w", err)
	}

	// 読み取り権限チェック
	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("デバイスを開けません: %w", err)
	}
	return file.Close()
}

// DeviceName はv4l2-ctlで取得したカメラ名を返す
// 取得できない場合はデバイス番号から生成する
func (d *Discovery) DeviceName(ctx context.Context, device string) string {
	if name := v4l2CardType(ctx, device); name != "" {
		return name
	}
	return fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
}

// v4l2CardType は "Card type" の行からカメラ名を抽出する
func v4l2CardType(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := exec.CommandContext(ctx, "v4l2-ctl", "--device", device, "--info").Output()
	if err != nil {
		return ""
	}
	return parseCardType(string(output))
}

func parseCardType(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Card type") {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := videoDevicePattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

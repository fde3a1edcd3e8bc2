package state

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func grayFrame(v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func pixel(t *testing.T, img image.Image) uint8 {
	t.Helper()
	if img == nil {
		t.Fatal("フレームが nil です")
	}
	return color.GrayModel.Convert(img.At(0, 0)).(color.Gray).Y
}

func TestDevice_Defaults(t *testing.T) {
	d := NewDevice(grayFrame(10))

	if !d.Keepalive() {
		t.Error("keepalive は true で初期化されるはず")
	}
	for _, cam := range Cameras {
		if got := pixel(t, d.Frame(cam)); got != 10 {
			t.Errorf("%s: got %d, want 10", cam, got)
		}
	}
}

func TestDevice_FrameIsCopy(t *testing.T) {
	d := NewDevice(grayFrame(10))

	frame := d.Frame(Cam1).(*image.Gray)
	frame.Pix[0] = 99

	if got := pixel(t, d.Frame(Cam1)); got != 10 {
		t.Errorf("読み出したフレームの変更が内部状態に影響した: got %d", got)
	}
}

func TestOutcome(t *testing.T) {
	o := NewOutcome()
	if o.String() != "SUCCESS" {
		t.Errorf("初期値: got %s, want SUCCESS", o.String())
	}
	o.Set(false)
	if o.String() != "FAIL" {
		t.Errorf("失敗後: got %s, want FAIL", o.String())
	}
	o.Set(true)
	if !o.Success() {
		t.Error("成功後は true のはず")
	}
}

func TestHolder_SnapshotFollowsFrameSource(t *testing.T) {
	device := NewDevice(grayFrame(40))
	buffer := NewFrameBuffer()
	buffer.SetFrames(grayFrame(200), grayFrame(210))
	source := NewFrameSource(true)
	h := NewHolder(device, buffer, source)

	testCases := []struct {
		name       string
		live       bool
		cam        Camera
		wantSource Source
		wantPixel  uint8
	}{
		{"ライブ cam-1", true, Cam1, SourceLive, 40},
		{"ライブ cam-2", true, Cam2, SourceLive, 40},
		{"バッファ cam-1", false, Cam1, SourceBuffer, 200},
		{"バッファ cam-2", false, Cam2, SourceBuffer, 210},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h.SetLive(tc.live)
			img, src, err := h.Snapshot(tc.cam)
			if err != nil {
				t.Fatalf("Snapshot failed: %v", err)
			}
			if src != tc.wantSource {
				t.Errorf("ソース: got %s, want %s", src, tc.wantSource)
			}
			if got := pixel(t, img); got != tc.wantPixel {
				t.Errorf("画素値: got %d, want %d", got, tc.wantPixel)
			}
		})
	}
}

func TestHolder_NoBufferFallsBackToLive(t *testing.T) {
	h := NewHolder(NewDevice(grayFrame(40)), nil, nil)
	h.SetLive(false) // ソースがない場合は何もしない

	img, src, err := h.Snapshot(Cam1)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if src != SourceLive {
		t.Errorf("ソース: got %s, want live", src)
	}
	if got := pixel(t, img); got != 40 {
		t.Errorf("画素値: got %d, want 40", got)
	}
}

func TestHolder_MissingBufferLogsFallback(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	defer func() { log.Logger = orig }()

	h := NewHolder(NewDevice(grayFrame(60)), nil, NewFrameSource(false))

	img, src, err := h.Snapshot(Cam2)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if src != SourceLive {
		t.Errorf("ソース: got %s, want live", src)
	}
	if got := pixel(t, img); got != 60 {
		t.Errorf("画素値: got %d, want 60", got)
	}

	out := buf.String()
	if !strings.Contains(out, `"level":"debug"`) || !strings.Contains(out, `"camera":"`+Cam2.String()+`"`) {
		t.Errorf("フォールバックのdebugログが出ていない: %q", out)
	}
}

func TestHolder_Close(t *testing.T) {
	h := NewHolder(NewDevice(grayFrame(1)), NewFrameBuffer(), NewFrameSource(true))
	h.Close()

	if _, _, err := h.Snapshot(Cam1); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v, want ErrClosed", err)
	}
}

func TestHolder_ConcurrentAccess(t *testing.T) {
	device := NewDevice(grayFrame(1))
	buffer := NewFrameBuffer()
	h := NewHolder(device, buffer, NewFrameSource(true))

	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.SetLive(i%2 == 0)
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			buffer.SetFrames(grayFrame(uint8(i)), grayFrame(uint8(i)))
			device.SetFrame(Cam2, grayFrame(uint8(i)))
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if _, _, err := h.Snapshot(Cameras[i%2]); err != nil {
				t.Errorf("Snapshot failed: %v", err)
				return
			}
		}
	}()

	wg.Wait()
}

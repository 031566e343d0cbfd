package diagnostics

import (
	"errors"
	"net"
	"testing"

	"go2tv.app/screencast/internal/ssdp"
)

func swapSeams(t *testing.T, look func(string) (string, error), ifaces func() ([]ssdp.Interface, error)) {
	t.Helper()
	origLook, origIfaces := lookPath, probeInterfaces
	t.Cleanup(func() {
		lookPath = origLook
		probeInterfaces = origIfaces
	})
	lookPath = look
	probeInterfaces = ifaces
}

func TestDetectDependencies(t *testing.T) {
	swapSeams(t,
		func(file string) (string, error) {
			if file == "/opt/ffmpeg/bin/ffmpeg" {
				return file, nil
			}
			return "", errors.New("not found")
		},
		func() ([]ssdp.Interface, error) {
			return []ssdp.Interface{{Name: "eth0", IP: net.ParseIP("192.168.1.50")}}, nil
		},
	)

	report := DetectDependencies("/opt/ffmpeg/bin/ffmpeg")
	if !report.FFmpeg.Found {
		t.Fatal("expected ffmpeg to be found")
	}
	if report.FFmpeg.Path != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("unexpected ffmpeg path: %s", report.FFmpeg.Path)
	}
	if len(report.Interfaces) != 1 || report.Interfaces[0].IP != "192.168.1.50" {
		t.Fatalf("unexpected interfaces: %+v", report.Interfaces)
	}
	if !report.AllRequiredPresent {
		t.Fatal("expected AllRequiredPresent to be true")
	}
}

func TestDetectDependencies_Missing(t *testing.T) {
	swapSeams(t,
		func(file string) (string, error) { return "", errors.New("not found") },
		func() ([]ssdp.Interface, error) { return nil, errors.New("no interfaces") },
	)

	report := DetectDependencies("ffmpeg")
	if report.FFmpeg.Found {
		t.Fatal("expected ffmpeg to be missing")
	}
	if report.InterfaceError == "" {
		t.Fatal("expected interface error to be reported")
	}
	if report.AllRequiredPresent {
		t.Fatal("expected AllRequiredPresent to be false")
	}
}

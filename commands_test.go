package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"go2tv.app/screencast/internal/buildinfo"
	"go2tv.app/screencast/internal/config"
)

func TestApplyScreenFlags_OnlyChangedFlagsOverride(t *testing.T) {
	flags := &screenFlags{}
	cmd := &cobra.Command{Use: "screen"}
	cmd.Flags().StringVar(&flags.device, "device", "", "")
	cmd.Flags().StringVar(&flags.audioSource, "audio-source", "", "")
	cmd.Flags().IntVar(&flags.framerate, "framerate", 0, "")
	if err := cmd.Flags().Parse([]string{"--device", "Bedroom", "--framerate", "24"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.Default("/home/u")
	cfg.Device = "LivingRoomTV"
	cfg.Capture.AudioSource = "pulse-monitor"

	applyScreenFlags(cmd, cfg, flags)

	if cfg.Device != "Bedroom" {
		t.Fatalf("device flag should win, got %q", cfg.Device)
	}
	if cfg.Encoding.Framerate != 24 {
		t.Fatalf("framerate flag should win, got %d", cfg.Encoding.Framerate)
	}
	if cfg.Capture.AudioSource != "pulse-monitor" {
		t.Fatalf("unset flag must keep the env value, got %q", cfg.Capture.AudioSource)
	}
	if cfg.Encoding.SegmentSeconds != 2 {
		t.Fatalf("unset flag must keep the default, got %d", cfg.Encoding.SegmentSeconds)
	}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got, want := strings.TrimSpace(out.String()), "screencast "+buildinfo.Version; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"screen", "devices", "sources", "self-test", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("subcommand %q not registered (err=%v)", name, err)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil || root.PersistentFlags().Lookup("log-level") == nil {
		t.Fatal("expected persistent --config and --log-level flags")
	}
}

func TestBuildSelfTest(t *testing.T) {
	out := buildSelfTest(&app{cfg: config.Default(t.TempDir())})
	if out.Server.Name != appName || out.Server.Version != buildinfo.Version {
		t.Fatalf("unexpected server block %+v", out.Server)
	}
	if !out.Go2TVAdapters.DLNAWired {
		t.Fatal("expected the DLNA factory to be wired")
	}
	if out.Platform.GOOS == "" {
		t.Fatal("expected GOOS to be reported")
	}
}

func TestApplyScreenFlags_EmptyAudioSourceDisablesAudio(t *testing.T) {
	flags := &screenFlags{}
	cmd := &cobra.Command{Use: "screen"}
	cmd.Flags().StringVar(&flags.audioSource, "audio-source", "", "")
	if err := cmd.Flags().Parse([]string{"--audio-source", ""}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.Default("/home/u")
	cfg.Capture.AudioSource = "pulse-monitor"
	applyScreenFlags(cmd, cfg, flags)

	if !cfg.Capture.DisableAudio || cfg.Capture.AudioSource != "" {
		t.Fatalf("expected audio disabled, got %+v", cfg.Capture)
	}
}

func TestResolveCapture(t *testing.T) {
	noEnv := func(string) string { return "" }

	cfg := config.Default("/home/u")
	capture, err := resolveCapture(cfg, "linux", noEnv)
	if err != nil {
		t.Fatalf("resolveCapture: %v", err)
	}
	if capture.VideoFormat != "x11grab" || !capture.HasAudio() {
		t.Fatalf("expected platform defaults with audio, got %+v", capture)
	}

	cfg.Capture.DisableAudio = true
	capture, err = resolveCapture(cfg, "linux", noEnv)
	if err != nil {
		t.Fatalf("resolveCapture: %v", err)
	}
	if capture.HasAudio() || capture.AudioFormat != "" {
		t.Fatalf("expected audio dropped, got %+v", capture)
	}
	if capture.VideoFormat != "x11grab" || capture.VideoSource == "" {
		t.Fatalf("video must be kept, got %+v", capture)
	}
}

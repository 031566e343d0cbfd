package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	go2tvadapters "go2tv.app/screencast/internal/adapters/go2tv"
	"go2tv.app/screencast/internal/buildinfo"
	"go2tv.app/screencast/internal/cast"
	"go2tv.app/screencast/internal/config"
	"go2tv.app/screencast/internal/diagnostics"
	"go2tv.app/screencast/internal/discovery"
	"go2tv.app/screencast/internal/encoder"
	"go2tv.app/screencast/internal/lifecycle"
	"go2tv.app/screencast/internal/logging"
	"go2tv.app/screencast/internal/ssdp"
	"go2tv.app/screencast/internal/ui"
)

const appName = "screencast"

type rootOptions struct {
	configPath string
	logLevel   string
}

// app is the loaded configuration and logger shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   appName,
		Short: "Cast your screen to a DLNA renderer",
		Long: `Cast the local screen and audio to a DLNA/UPnP media renderer.

Renderers are discovered with SSDP. The screen is captured by ffmpeg into an
HLS playlist which is served over HTTP to the renderer.

Settings come from flags, then environment variables (a .env file in the
current directory is honoured), then the YAML config file.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default ~/.config/screencast/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newScreenCmd(opts),
		newDevicesCmd(opts),
		newSourcesCmd(opts),
		newSelfTestCmd(opts),
		newVersionCmd(),
	)
	return root
}

func loadApp(opts *rootOptions) (*app, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	path, required := opts.configPath, opts.configPath != ""
	if path == "" {
		if env := os.Getenv(config.EnvConfig); env != "" {
			path, required = env, true
		} else {
			path = config.DefaultPath(home)
		}
	}

	cfg, err := config.Load(path, home, required)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv, home); err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) encoderBinary() string {
	return encoder.ResolveBinary(a.cfg.FFmpeg.Bin, a.cfg.FFmpeg.Home, runtime.GOOS)
}

func (a *app) discoveryService() *discovery.Service {
	return discovery.NewService(ssdp.NewDiscoverer(a.logger), a.cfg.Discovery.Timeout, a.logger)
}

type screenFlags struct {
	device           string
	dir              string
	ffmpeg           string
	videoFormat      string
	videoSource      string
	audioFormat      string
	audioSource      string
	encoderOptions   string
	framerate        int
	segmentSeconds   int
	playlistSize     int
	discoveryTimeout time.Duration
	playlistTimeout  time.Duration
}

func newScreenCmd(opts *rootOptions) *cobra.Command {
	flags := &screenFlags{}
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Cast the screen to a renderer until interrupted",
		Example: `  # Cast to a renderer by its friendly name
  screencast screen --device "Living Room TV"

  # Capture a second X display without audio at 24 fps
  screencast screen --device "Living Room TV" --video-source :1.0 --audio-source "" --framerate 24`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScreen(cmd, opts, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.device, "device", "", "renderer friendly name (env "+config.EnvDevice+")")
	f.StringVar(&flags.dir, "dir", "", "working directory for the playlist (env "+config.EnvWorkDir+")")
	f.StringVar(&flags.ffmpeg, "ffmpeg", "", "ffmpeg binary (env "+config.EnvFFmpegBin+")")
	f.StringVar(&flags.videoFormat, "video-format", "", "ffmpeg video input format (env "+config.EnvVideoFormat+")")
	f.StringVar(&flags.videoSource, "video-source", "", "ffmpeg video input (env "+config.EnvVideoSource+")")
	f.StringVar(&flags.audioFormat, "audio-format", "", "ffmpeg audio input format (env "+config.EnvAudioFormat+")")
	f.StringVar(&flags.audioSource, "audio-source", "", "ffmpeg audio input (env "+config.EnvAudioSource+")")
	f.StringVar(&flags.encoderOptions, "encoder-options", "", "extra ffmpeg output options (env "+config.EnvEncoderOptions+")")
	f.IntVar(&flags.framerate, "framerate", 0, "capture frame rate (env "+config.EnvFramerate+")")
	f.IntVar(&flags.segmentSeconds, "segment", 0, "HLS segment length in seconds (env "+config.EnvSegmentSeconds+")")
	f.IntVar(&flags.playlistSize, "playlist-size", 0, "segments kept in the playlist (env "+config.EnvPlaylistSize+")")
	f.DurationVar(&flags.discoveryTimeout, "discovery-timeout", 0, "SSDP discovery round length (env "+config.EnvDiscoveryTimeout+")")
	f.DurationVar(&flags.playlistTimeout, "playlist-timeout", 0, "how long to wait for the first playlist (env "+config.EnvPlaylistTimeout+")")
	return cmd
}

// applyScreenFlags copies explicitly set flags over the loaded config.
func applyScreenFlags(cmd *cobra.Command, cfg *config.Config, flags *screenFlags) {
	changed := cmd.Flags().Changed
	if changed("device") {
		cfg.Device = flags.device
	}
	if changed("dir") {
		cfg.WorkDir = flags.dir
	}
	if changed("ffmpeg") {
		cfg.FFmpeg.Bin = flags.ffmpeg
	}
	if changed("video-format") {
		cfg.Capture.VideoFormat = flags.videoFormat
	}
	if changed("video-source") {
		cfg.Capture.VideoSource = flags.videoSource
	}
	if changed("audio-format") {
		cfg.Capture.AudioFormat = flags.audioFormat
	}
	if changed("audio-source") {
		cfg.Capture.AudioSource = strings.TrimSpace(flags.audioSource)
		cfg.Capture.DisableAudio = cfg.Capture.AudioSource == ""
	}
	if changed("encoder-options") {
		cfg.Encoding.Options = flags.encoderOptions
	}
	if changed("framerate") {
		cfg.Encoding.Framerate = flags.framerate
	}
	if changed("segment") {
		cfg.Encoding.SegmentSeconds = flags.segmentSeconds
	}
	if changed("playlist-size") {
		cfg.Encoding.PlaylistSize = flags.playlistSize
	}
	if changed("discovery-timeout") {
		cfg.Discovery.Timeout = flags.discoveryTimeout
	}
	if changed("playlist-timeout") {
		cfg.Session.PlaylistTimeout = flags.playlistTimeout
	}
}

func runScreen(cmd *cobra.Command, opts *rootOptions, flags *screenFlags) error {
	a, err := loadApp(opts)
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	cfg := a.cfg
	applyScreenFlags(cmd, cfg, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}

	capture, err := resolveCapture(cfg, runtime.GOOS, os.Getenv)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), lifecycle.TerminationSignals()...)
	defer stop()

	a.logger.Info("screencast_start",
		zap.String("version", buildinfo.Version),
		zap.String("device", cfg.Device),
		zap.String("dir", cfg.WorkDir),
	)

	bundle := go2tvadapters.NewBundle()
	controller := cast.NewController(
		a.discoveryService(),
		bundle.DLNAFactory,
		encoder.NewLauncher(a.logger),
		a.logger,
		cast.Options{
			ServerReadyTimeout: cfg.Session.ServerReadyTimeout,
			PlaylistTimeout:    cfg.Session.PlaylistTimeout,
			OnState: func(s cast.State) {
				if s == cast.StatePlaying {
					fmt.Fprintf(cmd.OutOrStdout(), "Casting to %q. Press Ctrl+C to stop.\n", cfg.Device)
				}
			},
		},
	)

	err = controller.Screen(ctx, cast.Request{
		DeviceName: cfg.Device,
		WorkDir:    cfg.WorkDir,
		Encoder: encoder.Spec{
			Binary:         a.encoderBinary(),
			Capture:        capture,
			Framerate:      cfg.Encoding.Framerate,
			SegmentSeconds: cfg.Encoding.SegmentSeconds,
			PlaylistSize:   cfg.Encoding.PlaylistSize,
			Options:        encoder.SplitOptions(cfg.Encoding.Options),
		},
	})
	if errors.Is(err, context.Canceled) {
		a.logger.Info("screencast_stopped", zap.String("reason", "interrupted"))
		return nil
	}
	return err
}

// resolveCapture applies the configured overrides to the platform capture
// defaults. DisableAudio drops the audio input entirely.
func resolveCapture(cfg *config.Config, goos string, getenv func(string) string) (encoder.Capture, error) {
	capture, err := encoder.CaptureFor(goos, encoder.Capture{
		VideoFormat: cfg.Capture.VideoFormat,
		VideoSource: cfg.Capture.VideoSource,
		AudioFormat: cfg.Capture.AudioFormat,
		AudioSource: cfg.Capture.AudioSource,
	}, getenv)
	if err != nil {
		return encoder.Capture{}, err
	}
	if cfg.Capture.DisableAudio {
		capture.AudioFormat, capture.AudioSource = "", ""
	}
	return capture, nil
}

func newDevicesCmd(opts *rootOptions) *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List DLNA renderers on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			if cmd.Flags().Changed("timeout") {
				a.cfg.Discovery.Timeout = timeout
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), lifecycle.TerminationSignals()...)
			defer stop()

			renderers, err := a.discoveryService().ListRenderers(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), renderers)
			}
			fmt.Fprint(cmd.OutOrStdout(), ui.RenderDevices(renderers))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", ssdp.DefaultTimeout, "discovery round length")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print renderers as JSON")
	return cmd
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List capture devices ffmpeg can read from",
		Example: `  # Windows: list DirectShow audio and video devices
  screencast sources --format dshow`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			out, err := encoder.NewLauncher(a.logger).ListSources(cmd.Context(), a.encoderBinary(), format)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", encoder.ListFormat(runtime.GOOS), "ffmpeg input format to list")
	return cmd
}

type selfTestOutput struct {
	Server struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"server"`
	Go2TVAdapters struct {
		DLNAWired bool `json:"dlna_wired"`
	} `json:"go2tv_adapters"`
	Platform struct {
		GOOS            string `json:"goos"`
		CaptureDefaults bool   `json:"capture_defaults"`
	} `json:"platform"`
	Dependencies diagnostics.DependencyReport `json:"dependencies"`
}

func newSelfTestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "self-test",
		Short: "Print dependency and wiring diagnostics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(opts)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			return writeJSON(cmd.OutOrStdout(), buildSelfTest(a))
		},
	}
}

func buildSelfTest(a *app) selfTestOutput {
	bundle := go2tvadapters.NewBundle()

	out := selfTestOutput{
		Dependencies: diagnostics.DetectDependencies(a.encoderBinary()),
	}
	out.Server.Name = appName
	out.Server.Version = buildinfo.Version
	out.Go2TVAdapters.DLNAWired = bundle.DLNAFactory != nil
	out.Platform.GOOS = runtime.GOOS
	_, captureErr := encoder.CaptureFor(runtime.GOOS, encoder.Capture{
		VideoFormat: a.cfg.Capture.VideoFormat,
		VideoSource: a.cfg.Capture.VideoSource,
	}, os.Getenv)
	out.Platform.CaptureDefaults = captureErr == nil
	return out
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, buildinfo.Version)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

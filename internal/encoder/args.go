package encoder

import (
	"path/filepath"
	"strconv"
	"strings"
)

const (
	PlaylistName   = "index.m3u8"
	SegmentPattern = "segment%05d.ts"

	DefaultFramerate      = 30
	DefaultSegmentSeconds = 2
	DefaultPlaylistSize   = 5
)

// Spec is everything needed to launch one encoder for a session.
type Spec struct {
	Binary         string
	Dir            string
	Capture        Capture
	Framerate      int
	SegmentSeconds int
	PlaylistSize   int
	// Options are extra ffmpeg output options, appended after the defaults
	// so they take precedence.
	Options []string
}

// SplitOptions splits a user supplied option string on whitespace.
func SplitOptions(raw string) []string {
	return strings.Fields(raw)
}

func (s Spec) withDefaults() Spec {
	if s.Framerate <= 0 {
		s.Framerate = DefaultFramerate
	}
	if s.SegmentSeconds <= 0 {
		s.SegmentSeconds = DefaultSegmentSeconds
	}
	if s.PlaylistSize <= 0 {
		s.PlaylistSize = DefaultPlaylistSize
	}
	return s
}

func (s Spec) PlaylistPath() string {
	return filepath.Join(s.Dir, PlaylistName)
}

// Args builds the ffmpeg argument list, excluding the binary itself.
func Args(spec Spec) []string {
	spec = spec.withDefaults()
	framerate := strconv.Itoa(spec.Framerate)
	gop := strconv.Itoa(spec.Framerate * spec.SegmentSeconds)

	args := []string{"-hide_banner", "-loglevel", "warning", "-y"}

	args = append(args,
		"-f", spec.Capture.VideoFormat,
		"-framerate", framerate,
		"-i", spec.Capture.VideoSource,
	)
	if spec.Capture.HasAudio() {
		args = append(args,
			"-f", spec.Capture.AudioFormat,
			"-i", spec.Capture.AudioSource,
		)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-pix_fmt", "yuv420p",
		"-r", framerate,
		"-g", gop,
		"-keyint_min", gop,
		"-sc_threshold", "0",
	)
	if spec.Capture.HasAudio() {
		args = append(args,
			"-c:a", "aac",
			"-b:a", "128k",
			"-ac", "2",
		)
	}
	args = append(args, spec.Options...)

	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(spec.SegmentSeconds),
		"-hls_list_size", strconv.Itoa(spec.PlaylistSize),
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", filepath.Join(spec.Dir, SegmentPattern),
		spec.PlaylistPath(),
	)
	return args
}

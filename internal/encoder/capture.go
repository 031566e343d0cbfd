package encoder

import (
	"strings"

	"go2tv.app/screencast/internal/domain"
)

// Capture describes the ffmpeg inputs for one screen session. Formats are
// ffmpeg demuxer names (x11grab, avfoundation, gdigrab, dshow, pulse).
type Capture struct {
	VideoFormat string
	VideoSource string
	AudioFormat string
	AudioSource string
}

func (c Capture) HasAudio() bool {
	return strings.TrimSpace(c.AudioSource) != ""
}

// platformCapture supplies the default inputs for one operating system.
type platformCapture func(getenv func(string) string) Capture

var platformCaptures = map[string]platformCapture{
	"linux": func(getenv func(string) string) Capture {
		display := strings.TrimSpace(getenv("DISPLAY"))
		if display == "" {
			display = ":0.0"
		}
		return Capture{
			VideoFormat: "x11grab",
			VideoSource: display,
			AudioFormat: "pulse",
			AudioSource: "default",
		}
	},
	"darwin": func(func(string) string) Capture {
		// avfoundation "<screen>:<audio>" selects the first screen and the
		// default audio device in a single input.
		return Capture{
			VideoFormat: "avfoundation",
			VideoSource: "1:0",
		}
	},
	"windows": func(func(string) string) Capture {
		return Capture{
			VideoFormat: "gdigrab",
			VideoSource: "desktop",
			AudioFormat: "dshow",
		}
	},
}

// CaptureFor merges explicit overrides onto the defaults for goos.
// Platforms without defaults only work with an explicit video source and
// format. A platform default audio format is dropped when no audio source
// ends up configured.
func CaptureFor(goos string, override Capture, getenv func(string) string) (Capture, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}

	defaults, ok := platformCaptures[goos]
	if !ok && (strings.TrimSpace(override.VideoSource) == "" || strings.TrimSpace(override.VideoFormat) == "") {
		return Capture{}, unsupportedPlatformError(goos)
	}

	var capture Capture
	if ok {
		capture = defaults(getenv)
	}
	capture.VideoFormat = firstNonEmpty(override.VideoFormat, capture.VideoFormat)
	capture.VideoSource = firstNonEmpty(override.VideoSource, capture.VideoSource)
	capture.AudioFormat = firstNonEmpty(override.AudioFormat, capture.AudioFormat)
	capture.AudioSource = firstNonEmpty(override.AudioSource, capture.AudioSource)

	if goos == "windows" && capture.AudioFormat == "dshow" && capture.HasAudio() &&
		!strings.HasPrefix(capture.AudioSource, "audio=") {
		capture.AudioSource = "audio=" + capture.AudioSource
	}
	if !capture.HasAudio() {
		capture.AudioFormat = ""
		capture.AudioSource = ""
	}

	if capture.VideoFormat == "" || capture.VideoSource == "" {
		return Capture{}, captureSourceMissingError(goos)
	}
	return capture, nil
}

// ListFormat is the demuxer whose devices the sources command lists.
func ListFormat(goos string) string {
	switch goos {
	case "windows":
		return "dshow"
	case "darwin":
		return "avfoundation"
	default:
		return "pulse"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func unsupportedPlatformError(goos string) *domain.Error {
	return &domain.Error{
		Code:    domain.CodeUnsupportedPlatform,
		Message: "no default screen capture source for this platform",
		SuggestedFixes: []string{
			"Set SCREENCAST_VIDEO_FORMAT and SCREENCAST_VIDEO_SOURCE to an ffmpeg input that captures the screen.",
		},
		Details: map[string]any{
			"goos": goos,
		},
	}
}

func captureSourceMissingError(goos string) *domain.Error {
	return &domain.Error{
		Code:    domain.CodeCaptureSourceMissing,
		Message: "a video capture format and source are required",
		SuggestedFixes: []string{
			"Pass --video-format and --video-source, or set SCREENCAST_VIDEO_FORMAT and SCREENCAST_VIDEO_SOURCE.",
			"Run `screencast sources` to list the capture devices ffmpeg can see.",
		},
		Details: map[string]any{
			"goos": goos,
		},
	}
}

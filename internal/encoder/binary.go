package encoder

import (
	"os/exec"
	"path/filepath"
	"strings"

	"go2tv.app/screencast/internal/domain"
)

var lookPath = exec.LookPath

// ResolveBinary picks the ffmpeg executable: an explicit binary wins, then
// the binary inside ffmpegHome, then the bare name looked up on PATH.
func ResolveBinary(binary, ffmpegHome, goos string) string {
	if b := strings.TrimSpace(binary); b != "" {
		return b
	}
	name := "ffmpeg"
	if goos == "windows" {
		name = "ffmpeg.exe"
	}
	if home := strings.TrimSpace(ffmpegHome); home != "" {
		return filepath.Join(home, name)
	}
	return name
}

// LocateBinary confirms the binary is runnable and returns its path.
func LocateBinary(binary string) (string, error) {
	path, err := lookPath(binary)
	if err != nil {
		return "", encoderNotFoundError(binary, err)
	}
	return path, nil
}

func encoderNotFoundError(binary string, err error) *domain.Error {
	return &domain.Error{
		Code:    domain.CodeEncoderNotFound,
		Message: "ffmpeg is required for screen capture but was not found",
		SuggestedFixes: []string{
			"Linux: install ffmpeg with your package manager (for example: sudo apt install ffmpeg).",
			"macOS: install ffmpeg with Homebrew (brew install ffmpeg).",
			"Windows: install ffmpeg and set FFMPEG_HOME to its bin directory, or add ffmpeg.exe to PATH.",
			"Set FFMPEG_BIN to the full path of the ffmpeg executable.",
		},
		Details: map[string]any{
			"binary": binary,
		},
		Err: err,
	}
}

package domain

import "errors"

const (
	CodeDeviceNotFound        = "DEVICE_NOT_FOUND"
	CodeCaptureSourceMissing  = "CAPTURE_SOURCE_MISSING"
	CodeUnsupportedPlatform   = "UNSUPPORTED_PLATFORM"
	CodeEncoderNotFound       = "ENCODER_NOT_FOUND"
	CodeEncoderLaunchFailed   = "ENCODER_LAUNCH_FAILED"
	CodeEncoderExited         = "ENCODER_EXITED"
	CodePlaylistTimeout       = "PLAYLIST_TIMEOUT"
	CodeServerStartFailed     = "SERVER_START_FAILED"
	CodeRemoteControlFailed   = "REMOTE_CONTROL_FAILED"
	CodeInvalidConfig         = "INVALID_CONFIG"
	CodeWorkingDirUnavailable = "WORKING_DIR_UNAVAILABLE"
)

type Error struct {
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Err            error          `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// IsCode reports whether err carries a domain error with the given code.
func IsCode(err error, code string) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

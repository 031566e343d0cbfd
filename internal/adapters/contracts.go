// Package adapters declares the renderer control contracts the cast
// controller depends on, so tests can drive a session without a TV.
package adapters

import (
	"context"
	"errors"

	"go2tv.app/go2tv/v2/soapcalls"
)

// ErrUnsupportedMediaType reports that the renderer's sink protocols
// accept none of the media types offered for the stream. Retrying the same
// call cannot succeed.
var ErrUnsupportedMediaType = errors.New("renderer accepts none of the offered media types")

// DLNAPayload drives the AVTransport service of one renderer for one
// media URL.
type DLNAPayload interface {
	// Play sets the transport URI and starts playback. It returns an error
	// wrapping ErrUnsupportedMediaType when the renderer rejects the stream
	// type.
	Play() error
	Stop() error
	// SetContext bounds the SOAP calls that follow.
	SetContext(ctx context.Context)
	MediaURL() string
	SetMediaURL(mediaURL string)
}

// DLNAFactory creates a payload bound to the renderer described in o.
type DLNAFactory interface {
	NewTVPayload(o *soapcalls.Options) (DLNAPayload, error)
}

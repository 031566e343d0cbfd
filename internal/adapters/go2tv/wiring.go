package go2tv

import (
	"context"
	"errors"
	"fmt"

	"go2tv.app/go2tv/v2/soapcalls"
	"go2tv.app/screencast/internal/adapters"
)

// SOAP action sequences understood by soapcalls.TVPayload.SendtoTV.
const (
	actionSetURIAndPlay = "Play1"
	actionStop          = "Stop"
)

// fallbackMediaTypes are offered, in order, when the renderer's sink list
// has no entry for the playlist type. HLS segments are MPEG-TS, and many
// TVs only list video/* and audio/* sinks.
var fallbackMediaTypes = []string{"video/mp2t"}

// Bundle wires the go2tv-backed adapters in one place.
type Bundle struct {
	DLNAFactory adapters.DLNAFactory
}

func NewBundle() Bundle {
	return Bundle{
		DLNAFactory: DLNAFactory{},
	}
}

type DLNAFactory struct{}

func (DLNAFactory) NewTVPayload(o *soapcalls.Options) (adapters.DLNAPayload, error) {
	payload, err := soapcalls.NewTVPayload(o)
	if err != nil {
		return nil, err
	}

	return &DLNAPayloadAdapter{payload: payload}, nil
}

// DLNAPayloadAdapter maps playback verbs onto go2tv SOAP action sequences.
type DLNAPayloadAdapter struct {
	payload *soapcalls.TVPayload
}

// Play runs go2tv's Play1 sequence: GetProtocolInfo against the
// ConnectionManager, SUBSCRIBE to AVTransport events, SetAVTransportURI
// with DIDL-Lite metadata, then Play. GetProtocolInfo fails when no
// http-get sink shares the major type of the payload media type, before
// SetAVTransportURI is sent; the fallback types are tried in that case.
func (d *DLNAPayloadAdapter) Play() error {
	err := d.payload.SendtoTV(actionSetURIAndPlay)
	for _, mediaType := range fallbackMediaTypes {
		if !errors.Is(err, soapcalls.ErrNoMatchingFileType) {
			break
		}
		d.payload.MediaType = mediaType
		err = d.payload.SendtoTV(actionSetURIAndPlay)
	}
	if errors.Is(err, soapcalls.ErrNoMatchingFileType) {
		return fmt.Errorf("%w: %w", adapters.ErrUnsupportedMediaType, err)
	}
	return err
}

func (d *DLNAPayloadAdapter) Stop() error {
	return d.payload.SendtoTV(actionStop)
}

func (d *DLNAPayloadAdapter) SetContext(ctx context.Context) {
	d.payload.SetContext(ctx)
}

func (d *DLNAPayloadAdapter) MediaURL() string {
	return d.payload.MediaURL
}

func (d *DLNAPayloadAdapter) SetMediaURL(mediaURL string) {
	d.payload.MediaURL = mediaURL
}

var _ adapters.DLNAFactory = DLNAFactory{}

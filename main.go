// Screencast casts the local screen to a DLNA media renderer.
//
// It finds renderers with SSDP, captures the screen into an HLS playlist
// with ffmpeg, serves the playlist over HTTP and tells the renderer to play
// it.
//
// Usage:
//
//	screencast screen --device "Living Room TV"
//	screencast devices
//	screencast sources
package main

import (
	"context"
	"fmt"
	"os"

	"go2tv.app/screencast/internal/ui"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprint(os.Stderr, ui.RenderError(err))
		os.Exit(1)
	}
}

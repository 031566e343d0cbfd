// Package cast runs screen sessions: it resolves the renderer, serves the
// working directory, starts the encoder and tells the renderer to play the
// resulting HLS playlist.
package cast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go2tv.app/go2tv/v2/soapcalls"

	"go2tv.app/screencast/internal/adapters"
	"go2tv.app/screencast/internal/domain"
	"go2tv.app/screencast/internal/encoder"
	"go2tv.app/screencast/internal/fileserver"
)

const (
	hlsMediaType = "application/vnd.apple.mpegurl"

	defaultServerReadyTimeout = 10 * time.Second
	defaultPlaylistTimeout    = 30 * time.Second
	defaultStopTimeout        = 5 * time.Second

	playlistPollInitial = 100 * time.Millisecond
	playlistPollMax     = time.Second

	playAttempts     = 3
	playRetryInitial = 120 * time.Millisecond
	playRetryMax     = 800 * time.Millisecond
)

var errSessionActive = errors.New("a screen session is already running")

type rendererFinder interface {
	FindByName(ctx context.Context, name string) (*domain.Renderer, error)
}

type fileServer interface {
	Serve(started chan<- error)
	Port() int
	Shutdown(ctx context.Context) error
}

type encoderProcess interface {
	Done() <-chan struct{}
	Wait() error
	Kill() error
}

// Request carries the settings of one screen session.
type Request struct {
	DeviceName string
	WorkDir    string
	// Encoder.Dir is overwritten with WorkDir.
	Encoder encoder.Spec
}

type Options struct {
	ServerReadyTimeout time.Duration
	PlaylistTimeout    time.Duration
	StopTimeout        time.Duration
	// OnState observes every state change of every session.
	OnState func(State)
}

type Controller struct {
	finder       rendererFinder
	dlnaFactory  adapters.DLNAFactory
	newServer    func(dir string) fileServer
	startEncoder func(ctx context.Context, spec encoder.Spec) (encoderProcess, error)
	newID        func() string
	logger       *zap.Logger

	serverReadyTimeout time.Duration
	playlistTimeout    time.Duration
	stopTimeout        time.Duration
	onState            func(State)

	mu     sync.Mutex
	active *Session
}

func NewController(
	finder rendererFinder,
	dlnaFactory adapters.DLNAFactory,
	launcher *encoder.Launcher,
	logger *zap.Logger,
	opts Options,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Controller{
		finder:      finder,
		dlnaFactory: dlnaFactory,
		newServer: func(dir string) fileServer {
			return fileserver.New(dir, fileserver.DefaultAddr, logger)
		},
		newID:              func() string { return "sess_" + uuid.NewString() },
		logger:             logger,
		serverReadyTimeout: opts.ServerReadyTimeout,
		playlistTimeout:    opts.PlaylistTimeout,
		stopTimeout:        opts.StopTimeout,
		onState:            opts.OnState,
	}
	if launcher != nil {
		c.startEncoder = func(ctx context.Context, spec encoder.Spec) (encoderProcess, error) {
			return launcher.Start(ctx, spec)
		}
	}
	if c.serverReadyTimeout <= 0 {
		c.serverReadyTimeout = defaultServerReadyTimeout
	}
	if c.playlistTimeout <= 0 {
		c.playlistTimeout = defaultPlaylistTimeout
	}
	if c.stopTimeout <= 0 {
		c.stopTimeout = defaultStopTimeout
	}
	return c
}

// Active returns the running session, if any.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Screen runs one session to completion. It returns nil when the encoder
// exits cleanly and ctx.Err() when ctx ends the session. Teardown runs on
// every path once anything external was started.
func (c *Controller) Screen(ctx context.Context, req Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	sess, err := c.begin(req)
	if err != nil {
		return err
	}
	defer c.end(sess)

	if err := resetWorkDir(req.WorkDir); err != nil {
		return err
	}

	sess.setState(StateAwaitingDevice)
	renderer, err := c.finder.FindByName(ctx, req.DeviceName)
	if err != nil {
		return fmt.Errorf("resolve renderer %q: %w", req.DeviceName, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if renderer == nil {
		return deviceNotFoundError(req.DeviceName)
	}
	sess.attachRenderer(renderer)
	sess.logger.Info("renderer_resolved",
		zap.String("friendly_name", renderer.FriendlyName),
		zap.String("location", renderer.Location),
		zap.String("callback_host", renderer.CallbackHost()),
	)

	sess.setState(StateStartingServer)
	port, err := c.startServer(ctx, sess)
	if err != nil {
		return err
	}

	sess.setState(StateStartingEncoder)
	spec := req.Encoder
	spec.Dir = req.WorkDir
	if c.startEncoder == nil {
		return domain.NewError(domain.CodeEncoderLaunchFailed, "encoder launcher is not configured")
	}
	proc, err := c.startEncoder(ctx, spec)
	if err != nil {
		return err
	}
	sess.attachEncoder(proc)

	if err := c.awaitPlaylist(ctx, sess, proc, spec.PlaylistPath()); err != nil {
		return err
	}

	mediaURL := playlistURL(renderer, port)
	if err := c.play(ctx, sess, renderer, spec, mediaURL); err != nil {
		return err
	}
	sess.setState(StatePlaying)

	select {
	case <-proc.Done():
		if err := proc.Wait(); err != nil {
			return domain.WrapError(domain.CodeEncoderExited, "encoder exited unexpectedly", err)
		}
		sess.logger.Info("encoder_finished")
		return nil
	case <-ctx.Done():
		sess.logger.Info("session_interrupted", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

func (c *Controller) begin(req Request) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return nil, errSessionActive
	}
	sess := newSession(c.newID(), req.WorkDir, c.logger, c.onState, c.stopTimeout)
	c.active = sess
	return sess, nil
}

func (c *Controller) end(sess *Session) {
	sess.Teardown()
	c.mu.Lock()
	if c.active == sess {
		c.active = nil
	}
	c.mu.Unlock()
}

func (c *Controller) startServer(ctx context.Context, sess *Session) (int, error) {
	srv := c.newServer(sess.WorkDir)
	sess.attachServer(srv)

	started := make(chan error, 1)
	go srv.Serve(started)

	timer := time.NewTimer(c.serverReadyTimeout)
	defer timer.Stop()

	select {
	case err := <-started:
		if err != nil {
			return 0, domain.WrapError(domain.CodeServerStartFailed, "failed to start file server", err)
		}
	case <-timer.C:
		return 0, domain.NewError(domain.CodeServerStartFailed,
			fmt.Sprintf("file server did not report a port within %s", c.serverReadyTimeout))
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	port := srv.Port()
	if port <= 0 {
		return 0, domain.NewError(domain.CodeServerStartFailed, "file server reported no port")
	}
	sess.setPort(port)
	sess.logger.Info("file_server_ready", zap.Int("port", port))
	return port, nil
}

// awaitPlaylist polls for the playlist with exponential backoff until it
// exists, the encoder exits, ctx ends or the playlist timeout passes.
func (c *Controller) awaitPlaylist(ctx context.Context, sess *Session, proc encoderProcess, path string) error {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-proc.Done():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = playlistPollInitial
	policy.MaxInterval = playlistPollMax
	policy.MaxElapsedTime = c.playlistTimeout

	started := time.Now()
	err := backoff.Retry(func() error {
		_, statErr := os.Stat(path)
		return statErr
	}, backoff.WithContext(policy, waitCtx))
	if err == nil {
		sess.logger.Info("playlist_ready",
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(started)),
		)
		return nil
	}

	select {
	case <-proc.Done():
		return domain.WrapError(domain.CodeEncoderExited, "encoder exited before writing the playlist", proc.Wait())
	default:
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &domain.Error{
		Code:    domain.CodePlaylistTimeout,
		Message: fmt.Sprintf("encoder did not write %s within %s", encoder.PlaylistName, c.playlistTimeout),
		SuggestedFixes: []string{
			"Check that the capture source exists with `screencast sources`.",
			"Run with --log-level debug to see the encoder output.",
		},
		Details: map[string]any{
			"path": path,
		},
		Err: err,
	}
}

func (c *Controller) play(ctx context.Context, sess *Session, renderer *domain.Renderer, spec encoder.Spec, mediaURL string) error {
	if c.dlnaFactory == nil {
		return domain.NewError(domain.CodeRemoteControlFailed, "DLNA control is not configured")
	}

	payload, err := c.dlnaFactory.NewTVPayload(&soapcalls.Options{
		Ctx:   ctx,
		DMR:   renderer.Location,
		Media: spec.PlaylistPath(),
		Mtype: hlsMediaType,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return domain.WrapError(domain.CodeRemoteControlFailed, "failed to initialize DLNA payload", err)
	}
	payload.SetContext(ctx)
	payload.SetMediaURL(mediaURL)
	sess.attachPayload(payload, mediaURL)

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = playRetryInitial
	retry.MaxInterval = playRetryMax
	policy := backoff.WithMaxRetries(backoff.WithContext(retry, ctx), playAttempts-1)
	if err := backoff.Retry(func() error {
		err := payload.Play()
		if errors.Is(err, adapters.ErrUnsupportedMediaType) {
			return backoff.Permanent(err)
		}
		return err
	}, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, adapters.ErrUnsupportedMediaType) {
			return &domain.Error{
				Code:    domain.CodeRemoteControlFailed,
				Message: "renderer does not accept HLS or MPEG-TS streams",
				SuggestedFixes: []string{
					"Pick another renderer with `screencast devices`.",
					"Check that the TV plays HLS or MPEG-TS streams from other apps.",
				},
				Details: map[string]any{
					"device":     renderer.FriendlyName,
					"media_type": hlsMediaType,
				},
				Err: err,
			}
		}
		return domain.WrapError(domain.CodeRemoteControlFailed, "failed to start DLNA playback", err)
	}

	sess.logger.Info("remote_play_sent", zap.String("media_url", mediaURL))
	return nil
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.DeviceName) == "" {
		return &domain.Error{
			Code:    domain.CodeDeviceNotFound,
			Message: "no target device name was supplied",
			SuggestedFixes: []string{
				"Pass --device or set SCREENCAST_DEVICE to a renderer name from `screencast devices`.",
			},
		}
	}
	if strings.TrimSpace(req.WorkDir) == "" {
		return domain.NewError(domain.CodeWorkingDirUnavailable, "working directory is empty")
	}
	capture := req.Encoder.Capture
	if strings.TrimSpace(capture.VideoFormat) == "" || strings.TrimSpace(capture.VideoSource) == "" {
		return domain.NewError(domain.CodeCaptureSourceMissing, "a video capture format and source are required")
	}
	return nil
}

// resetWorkDir removes the working directory and recreates it empty.
func resetWorkDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return domain.WrapError(domain.CodeWorkingDirUnavailable, "failed to clear working directory", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.WrapError(domain.CodeWorkingDirUnavailable, "failed to create working directory", err)
	}
	return nil
}

func playlistURL(renderer *domain.Renderer, port int) string {
	host := net.JoinHostPort(renderer.CallbackHost(), strconv.Itoa(port))
	return "http://" + host + "/" + encoder.PlaylistName
}

func deviceNotFoundError(name string) *domain.Error {
	return &domain.Error{
		Code:    domain.CodeDeviceNotFound,
		Message: fmt.Sprintf("no renderer named %q supports SetAVTransportURI", name),
		SuggestedFixes: []string{
			"Run `screencast devices` to list the renderers on this network.",
			"Names must match exactly, including case.",
		},
		Details: map[string]any{
			"device": name,
		},
	}
}

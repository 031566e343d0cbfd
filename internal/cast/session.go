package cast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"go2tv.app/screencast/internal/adapters"
	"go2tv.app/screencast/internal/domain"
)

// Session is one screen invocation. The file server, encoder and remote
// payload are attached as each phase starts; Teardown releases whatever
// was attached.
type Session struct {
	ID      string
	WorkDir string

	logger      *zap.Logger
	onState     func(State)
	stopTimeout time.Duration

	mu       sync.Mutex
	state    State
	renderer *domain.Renderer
	server   fileServer
	port     int
	encoder  encoderProcess
	payload  adapters.DLNAPayload
	mediaURL string

	teardownOnce sync.Once
}

func newSession(id, workDir string, logger *zap.Logger, onState func(State), stopTimeout time.Duration) *Session {
	return &Session{
		ID:          id,
		WorkDir:     workDir,
		logger:      logger.With(zap.String("session_id", id)),
		onState:     onState,
		stopTimeout: stopTimeout,
		state:       StateIdle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Renderer() *domain.Renderer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renderer
}

// MediaURL is the playlist URL handed to the renderer, empty before play.
func (s *Session) MediaURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mediaURL
}

func (s *Session) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.logger.Info("session_state", zap.Stringer("state", state))
	if s.onState != nil {
		s.onState(state)
	}
}

func (s *Session) attachRenderer(r *domain.Renderer) {
	s.mu.Lock()
	s.renderer = r
	s.mu.Unlock()
}

func (s *Session) attachServer(srv fileServer) {
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
}

func (s *Session) setPort(port int) {
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
}

func (s *Session) attachEncoder(proc encoderProcess) {
	s.mu.Lock()
	s.encoder = proc
	s.mu.Unlock()
}

func (s *Session) attachPayload(payload adapters.DLNAPayload, mediaURL string) {
	s.mu.Lock()
	s.payload = payload
	s.mediaURL = mediaURL
	s.mu.Unlock()
}

// Teardown stops remote playback, kills the encoder and shuts the file
// server down, in that order. Only the first call does anything; failures
// are logged and never stop the remaining steps.
func (s *Session) Teardown() {
	s.teardownOnce.Do(func() {
		s.setState(StateStopping)

		s.mu.Lock()
		payload, proc, srv := s.payload, s.encoder, s.server
		s.mu.Unlock()

		if payload != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
			payload.SetContext(ctx)
			if err := payload.Stop(); err != nil {
				s.logger.Warn("remote_stop_failed", zap.Error(err))
			}
			cancel()
		}

		if proc != nil {
			if err := proc.Kill(); err != nil {
				s.logger.Warn("encoder_kill_failed", zap.Error(err))
			}
		}

		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
			if err := srv.Shutdown(ctx); err != nil {
				s.logger.Warn("file_server_shutdown_failed", zap.Error(err))
			}
			cancel()
		}

		s.setState(StateTerminated)
	})
}

package recaptcha

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AudioChallenge is one audio puzzle instance.
type AudioChallenge struct {
	SourceURL   string
	EncodedPath string
	DecodedPath string
}

// Session is the mutable state of a single Solve call. It owns the deadline that
// bounds every wait and all temporary files created on the audio path.
type Session struct {
	ID string

	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time
	deadline time.Time

	// Parent directory for the private temp dir, "" means os.TempDir()
	baseDir string
	dir     string
	files   []string
	closed  bool

	// Valid only between Init and the one-click step
	widget Element

	audio  AudioChallenge
	answer string

	logger zerolog.Logger
}

func newSession(parent context.Context, ceiling time.Duration, baseDir string, logger zerolog.Logger) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(parent, ceiling)
	deadline, _ := ctx.Deadline()

	return &Session{
		ID:       id,
		parent:   parent,
		ctx:      ctx,
		cancel:   cancel,
		started:  time.Now(),
		deadline: deadline,
		baseDir:  baseDir,
		logger:   logger.With().Str("session", id[:8]).Logger(),
	}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Audio() AudioChallenge {
	return s.audio
}

func (s *Session) Elapsed() time.Duration {
	return time.Since(s.started)
}

func (s *Session) Remaining() time.Duration {
	left := time.Until(s.deadline)
	if left < 0 {
		return 0
	}
	return left
}

// Bound clamps a step timeout to what is left of the session budget.
func (s *Session) Bound(timeout time.Duration) time.Duration {
	if left := s.Remaining(); timeout <= 0 || timeout > left {
		return left
	}
	return timeout
}

// Sleep is a settle delay that ends early when the session ends.
func (s *Session) Sleep(d time.Duration) error {
	return sleepContext(s.ctx, d)
}

// Checkpoint runs at every state transition.
func (s *Session) Checkpoint() error {
	if err := s.parent.Err(); err != nil {
		return NewAbortError(KindCancelled, "", err)
	}
	if err := s.ctx.Err(); err != nil {
		return NewAbortError(KindTimeout, "", err)
	}
	return nil
}

// cause classifies a step failure, preferring cancellation and session expiry
// over the step's own kind.
func (s *Session) cause(kind AbortKind, state State, err error) *AbortError {
	var abort *AbortError
	if errors.As(err, &abort) {
		if abort.State == "" {
			abort.State = state
		}
		return abort
	}
	if s.parent.Err() != nil {
		return NewAbortError(KindCancelled, state, s.parent.Err())
	}
	if s.ctx.Err() != nil {
		return NewAbortError(KindTimeout, state, err)
	}
	return NewAbortError(kind, state, err)
}

// TempDir creates the private directory on first use.
func (s *Session) TempDir() (string, error) {
	if s.closed {
		return "", errors.New("session closed")
	}
	if s.dir != "" {
		return s.dir, nil
	}
	dir, err := os.MkdirTemp(s.baseDir, "recaptcha-"+s.ID[:8]+"-")
	if err != nil {
		return "", err
	}
	s.dir = dir
	return dir, nil
}

// Track registers a file for deletion on Close.
func (s *Session) Track(path string) {
	if path != "" {
		s.files = append(s.files, path)
	}
}

// Close deletes every tracked file and the temp dir. Safe to call twice.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.widget = nil
	defer s.cancel()

	var errs []error
	for _, path := range s.files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	s.files = nil

	if s.dir != "" {
		if err := os.RemoveAll(s.dir); err != nil {
			errs = append(errs, err)
		}
	}
	s.dir = ""
	return errors.Join(errs...)
}

// step starts a structured log line for a state machine step.
func (s *Session) step(state State, step string) *zerolog.Event {
	return s.logger.Info().Str("state", string(state)).Str("step", step)
}

// Package recaptcha solves reCAPTCHA v2 checkbox widgets in a remote browser:
// one click first, then the audio challenge (download, transcode, transcribe,
// type the answer) when the click alone is not enough.
package recaptcha

import (
	"time"

	"github.com/rs/zerolog"
)

const (
	WIDGET_SELECTOR          = `iframe[title="reCAPTCHA"]`
	ANCHOR_SELECTOR          = ".rc-anchor-content"
	CHALLENGE_FRAME_XPATH    = "//iframe[contains(@title, 'recaptcha')]"
	AUDIO_BUTTON_SELECTOR    = "#recaptcha-audio-button"
	AUDIO_SOURCE_SELECTOR    = "#audio-source"
	AUDIO_RESPONSE_SELECTOR  = "#audio-response"
	CHECKMARK_SELECTOR       = ".recaptcha-checkbox-checkmark"
	SOLVED_ATTRIBUTE         = "style"
	DOWNLOAD_LINK_SELECTOR   = ".rc-audiochallenge-tdownload-link"
	BLOCKED_MARKER_SELECTOR  = ".rc-doscaptcha-header"
	DEFAULT_SOLVE_CEILING    = 60 * time.Second
	DEFAULT_SETTLE_DELAY     = 5 * time.Second
	DEFAULT_RECHECK_ATTEMPTS = 3
)

// Selectors locate the parts of the widget. Widget, Anchor and Checkmark live in
// the checkbox iframe; the rest in the challenge iframe.
type Selectors struct {
	Widget         Selector
	Anchor         Selector
	Checkmark      Selector
	ChallengeFrame Selector
	AudioButton    Selector
	AudioSource    Selector
	AudioResponse  Selector

	// Attribute whose presence on Checkmark means the widget validated
	SolvedAttribute string

	// goquery selectors used on the challenge frame HTML
	DownloadLink  string
	BlockedMarker string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Widget:          CSS(WIDGET_SELECTOR),
		Anchor:          CSS(ANCHOR_SELECTOR),
		Checkmark:       CSS(CHECKMARK_SELECTOR),
		ChallengeFrame:  XPath(CHALLENGE_FRAME_XPATH),
		AudioButton:     CSS(AUDIO_BUTTON_SELECTOR),
		AudioSource:     CSS(AUDIO_SOURCE_SELECTOR),
		AudioResponse:   CSS(AUDIO_RESPONSE_SELECTOR),
		SolvedAttribute: SOLVED_ATTRIBUTE,
		DownloadLink:    DOWNLOAD_LINK_SELECTOR,
		BlockedMarker:   BLOCKED_MARKER_SELECTOR,
	}
}

// Timeouts of the individual waits. Every one of them is additionally clamped
// by Ceiling, the budget of a whole Solve call.
type Timeouts struct {
	Widget      time.Duration
	Element     time.Duration
	Visible     time.Duration
	Settle      time.Duration
	AudioRender time.Duration
	KeyDelay    time.Duration
	Ceiling     time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Widget:      10 * time.Second,
		Element:     2 * time.Second,
		Visible:     10 * time.Second,
		Settle:      DEFAULT_SETTLE_DELAY,
		AudioRender: 300 * time.Millisecond,
		KeyDelay:    100 * time.Millisecond,
		Ceiling:     DEFAULT_SOLVE_CEILING,
	}
}

// Solver drives one widget per Solve call. It is not modified by Solve, so one
// Solver may serve several pages concurrently.
type Solver struct {
	fetcher     AudioFetcher
	transcoder  AudioTranscoder
	transcriber SpeechTranscriber

	selectors Selectors
	timeouts  Timeouts

	// Idempotent reads only
	visibleRetry RetryBudget
	sourceRetry  RetryBudget
	recheck      RetryBudget

	tempDir string

	// Селектор для ознаки наявності капчі
	captchaSelector string

	logger zerolog.Logger
}

type Option func(*Solver)

func WithFetcher(fetcher AudioFetcher) Option {
	return func(s *Solver) {
		s.fetcher = fetcher
	}
}

func WithTranscoder(transcoder AudioTranscoder) Option {
	return func(s *Solver) {
		s.transcoder = transcoder
	}
}

func WithSelectors(selectors Selectors) Option {
	return func(s *Solver) {
		s.selectors = selectors
	}
}

func WithTimeouts(timeouts Timeouts) Option {
	return func(s *Solver) {
		s.timeouts = timeouts
	}
}

// WithRecheck sets the post-submit verification loop. attempts=1 checks once.
func WithRecheck(attempts int, delay time.Duration) Option {
	return func(s *Solver) {
		s.recheck = RetryBudget{MaxAttempts: attempts, Delay: delay}
	}
}

// WithSourceRetry sets how often the audio link is re-read before giving up.
func WithSourceRetry(budget RetryBudget) Option {
	return func(s *Solver) {
		s.sourceRetry = budget
	}
}

// WithVisibleRetry splits the challenge frame visibility wait into attempts.
func WithVisibleRetry(budget RetryBudget) Option {
	return func(s *Solver) {
		s.visibleRetry = budget
	}
}

// WithTempDir sets the parent of the per-session private directories.
func WithTempDir(dir string) Option {
	return func(s *Solver) {
		s.tempDir = dir
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Solver) {
		s.logger = logger
	}
}

// New creates a solver. transcriber is the only collaborator without a default.
func New(transcriber SpeechTranscriber, opts ...Option) *Solver {
	s := &Solver{
		fetcher:      NewHTTPFetcher(DEFAULT_FETCH_TIMEOUT),
		transcoder:   NewFFmpegTranscoder(DEFAULT_FFMPEG_BINARY),
		transcriber:  transcriber,
		selectors:    DefaultSelectors(),
		timeouts:     DefaultTimeouts(),
		visibleRetry: RetryBudget{MaxAttempts: 2, Delay: 250 * time.Millisecond},
		sourceRetry:  RetryBudget{MaxAttempts: 3, Delay: 500 * time.Millisecond},
		recheck:      RetryBudget{MaxAttempts: DEFAULT_RECHECK_ATTEMPTS, Delay: time.Second},
		logger:       zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.timeouts.Ceiling <= 0 {
		s.timeouts.Ceiling = DEFAULT_SOLVE_CEILING
	}

	return s
}

// SetCaptchaSelector overrides what IsCaptcha looks for.
func (s *Solver) SetCaptchaSelector(selector string) *Solver {
	s.captchaSelector = selector
	return s
}

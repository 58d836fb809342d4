package recaptcha

import (
	"context"
	"errors"
	"strings"

	"github.com/go-rod/rod"
)

// Solve runs the state machine against a page that shows the widget. It never
// returns an error: failures are reported as an Aborted outcome. Temporary
// files are removed before Solve returns, whatever the outcome.
func (s *Solver) Solve(ctx context.Context, browser Browser) (outcome Outcome) {
	session := newSession(ctx, s.timeouts.Ceiling, s.tempDir, s.logger)

	defer func() {
		if err := session.Close(); err != nil {
			session.logger.Warn().Err(err).Msg("cannot remove temp files")
		}
		outcome.Elapsed = session.Elapsed()
		s.report(session, outcome)
	}()

	session.logger.Info().Msg("solving captcha")

	state, last := StateInit, StateInit
	for !state.terminal() {
		last = state

		if err := session.Checkpoint(); err != nil {
			return s.aborted(session, state, err)
		}

		next, err := s.step(session, browser, state)
		if err != nil {
			return s.aborted(session, state, err)
		}
		state = next
	}

	if state == StateSolved {
		return Outcome{Status: Solved, State: last}
	}
	return Outcome{Status: Unsolved, State: last}
}

// SolveCaptcha adapts Solve to the navigator's CaptchaSolver contract.
func (s *Solver) SolveCaptcha(ctx context.Context, page *rod.Page) (bool, error) {
	outcome := s.Solve(ctx, NewRodBrowser(page))
	if outcome.Status == Aborted {
		return false, outcome.Err
	}
	return outcome.Solved(), nil
}

func (s *Solver) step(session *Session, browser Browser, state State) (State, error) {
	switch state {
	case StateInit:
		return s.locateWidget(session, browser)
	case StateWidgetLocated:
		return s.clickWidget(session, browser)
	case StateOneClickAttempted:
		return s.fastPathOrAudio(session, browser)
	case StateAudioFallback:
		return s.downloadAudio(session, browser)
	case StateAudioDownloaded:
		return s.transcodeAudio(session)
	case StateAudioTranscoded:
		return s.recognizeText(session)
	case StateTextRecognized:
		return s.submitAnswer(session, browser)
	case StateAnswerSubmitted:
		return s.confirm(session, browser)
	}
	return StateAborted, errors.New("unknown state " + string(state))
}

// Init -> WidgetLocated. Not retried, the page layout is stable within an attempt.
func (s *Solver) locateWidget(session *Session, browser Browser) (State, error) {
	session.step(StateInit, "locate-widget").Msg("locating widget")

	widget, err := browser.Locate(session.ctx, s.selectors.Widget, session.Bound(s.timeouts.Widget))
	if err != nil {
		return StateAborted, session.cause(KindWidgetNotFound, StateInit, err)
	}

	session.widget = widget
	return StateWidgetLocated, nil
}

// WidgetLocated -> OneClickAttempted. A failed click is only logged.
func (s *Solver) clickWidget(session *Session, browser Browser) (State, error) {
	session.step(StateWidgetLocated, "click-widget").Msg("clicking widget checkbox")

	widget := session.widget
	session.widget = nil

	if err := s.clickAnchor(session, browser, widget); err != nil {
		if session.Checkpoint() != nil {
			return StateAborted, session.cause(KindClickFailed, StateWidgetLocated, err)
		}
		session.logger.Warn().
			Err(err).
			Str("state", string(StateWidgetLocated)).
			Str("kind", string(KindClickFailed)).
			Msg("widget click failed, treating captcha as not solved yet")
	}

	return StateOneClickAttempted, nil
}

// OneClickAttempted -> Solved | AudioFallback
func (s *Solver) fastPathOrAudio(session *Session, browser Browser) (State, error) {
	session.step(StateOneClickAttempted, "settle").Dur("delay", s.timeouts.Settle).Msg("waiting for widget to settle")
	if err := session.Sleep(s.timeouts.Settle); err != nil {
		return StateAborted, session.cause(KindTimeout, StateOneClickAttempted, err)
	}

	err := s.checkSolved(session, browser)
	if err == nil {
		session.step(StateOneClickAttempted, "check-solved").Msg("captcha solved by the first click")
		return StateSolved, nil
	}
	session.step(StateOneClickAttempted, "check-solved").AnErr("reason", err).Msg("not solved, switching to audio challenge")

	session.step(StateOneClickAttempted, "enter-audio").Msg("clicking audio button")
	if err := s.enterAudio(session, browser); err != nil {
		return StateAborted, session.cause(KindAudioEntryFailed, StateOneClickAttempted, err)
	}

	return StateAudioFallback, nil
}

// AudioFallback -> AudioDownloaded
func (s *Solver) downloadAudio(session *Session, browser Browser) (State, error) {
	if err := session.Sleep(s.timeouts.AudioRender); err != nil {
		return StateAborted, session.cause(KindDownloadFailed, StateAudioFallback, err)
	}

	session.step(StateAudioFallback, "audio-source").Msg("reading audio source")
	src, err := s.audioSource(session, browser)
	if err != nil {
		return StateAborted, session.cause(KindDownloadFailed, StateAudioFallback, err)
	}
	session.audio.SourceURL = src

	dir, err := session.TempDir()
	if err != nil {
		return StateAborted, session.cause(KindDownloadFailed, StateAudioFallback, err)
	}

	session.step(StateAudioFallback, "download").Str("src", src).Msg("downloading audio")
	path, err := s.fetcher.Fetch(session.ctx, src, dir)
	session.Track(path)
	if err != nil {
		return StateAborted, session.cause(KindDownloadFailed, StateAudioFallback, err)
	}

	session.audio.EncodedPath = path
	return StateAudioDownloaded, nil
}

// AudioDownloaded -> AudioTranscoded
func (s *Solver) transcodeAudio(session *Session) (State, error) {
	session.step(StateAudioDownloaded, "transcode").Str("path", session.audio.EncodedPath).Msg("converting audio to wav")

	out, err := s.transcoder.Transcode(session.ctx, session.audio.EncodedPath, FormatMP3, FormatWAV)
	session.Track(out)
	if err != nil {
		return StateAborted, session.cause(KindTranscodeFailed, StateAudioDownloaded, err)
	}

	session.audio.DecodedPath = out
	return StateAudioTranscoded, nil
}

// AudioTranscoded -> TextRecognized
func (s *Solver) recognizeText(session *Session) (State, error) {
	session.step(StateAudioTranscoded, "transcribe").Str("path", session.audio.DecodedPath).Msg("recognizing audio")

	if s.transcriber == nil {
		return StateAborted, session.cause(KindTranscriptionFailed, StateAudioTranscoded, errors.New("no speech transcriber configured"))
	}

	text, err := s.transcriber.Transcribe(session.ctx, session.audio.DecodedPath)
	if err != nil {
		return StateAborted, session.cause(KindTranscriptionFailed, StateAudioTranscoded, err)
	}

	answer := normalizeAnswer(text)
	if answer == "" {
		return StateAborted, session.cause(KindTranscriptionFailed, StateAudioTranscoded, ErrEmptyTranscript)
	}

	session.answer = answer
	session.step(StateAudioTranscoded, "transcribe").Str("answer", answer).Msg("audio recognized")
	return StateTextRecognized, nil
}

// TextRecognized -> AnswerSubmitted. Side effects, never retried.
func (s *Solver) submitAnswer(session *Session, browser Browser) (State, error) {
	session.step(StateTextRecognized, "submit").Msg("typing answer")

	if err := s.typeAnswer(session, browser, session.answer); err != nil {
		return StateAborted, session.cause(KindSubmitFailed, StateTextRecognized, err)
	}
	return StateAnswerSubmitted, nil
}

// AnswerSubmitted -> Solved | Unsolved
func (s *Solver) confirm(session *Session, browser Browser) (State, error) {
	session.step(StateAnswerSubmitted, "settle").Dur("delay", s.timeouts.Settle).Msg("waiting for verification")
	if err := session.Sleep(s.timeouts.Settle); err != nil {
		return StateAborted, session.cause(KindTimeout, StateAnswerSubmitted, err)
	}

	attempts, err := s.recheck.Do(session.ctx, func(attempt int) error {
		return s.checkSolved(session, browser)
	})
	if err == nil {
		session.step(StateAnswerSubmitted, "check-solved").Int("attempts", attempts).Msg("captcha solved by audio answer")
		return StateSolved, nil
	}
	if session.Checkpoint() != nil {
		return StateAborted, session.cause(KindTimeout, StateAnswerSubmitted, err)
	}

	session.step(StateAnswerSubmitted, "check-solved").Int("attempts", attempts).AnErr("reason", err).Msg("solved indicator never appeared")
	return StateUnsolved, nil
}

func (s *Solver) aborted(session *Session, state State, err error) Outcome {
	var abort *AbortError
	if !errors.As(err, &abort) {
		abort = session.cause(KindTimeout, state, err)
	}
	if abort.State == "" {
		abort.State = state
	}

	return Outcome{
		Status: Aborted,
		Reason: abort.Kind,
		State:  state,
		Err:    abort,
	}
}

func (s *Solver) report(session *Session, outcome Outcome) {
	event := session.logger.Info()
	if outcome.Status == Aborted {
		event = session.logger.Error().Err(outcome.Err).Str("kind", string(outcome.Reason))
	} else if outcome.Status == Unsolved {
		event = session.logger.Warn()
	}

	event.
		Str("status", string(outcome.Status)).
		Str("state", string(outcome.State)).
		Dur("elapsed", outcome.Elapsed).
		Msg("captcha solve finished")
}

// normalizeAnswer lower-cases the transcript and drops punctuation around it.
func normalizeAnswer(text string) string {
	text = strings.Join(strings.Fields(strings.ToLower(text)), " ")
	return strings.Trim(text, ".,!?;:\"' ")
}

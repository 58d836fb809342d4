package recaptcha

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

func (s *Solver) clickAnchor(session *Session, browser Browser, widget Element) error {
	if widget == nil {
		return errors.New("widget reference is gone")
	}

	frame, err := browser.Frame(session.ctx, widget)
	if err != nil {
		return fmt.Errorf("enter widget frame: %w", err)
	}

	anchor, err := frame.Locate(session.ctx, s.selectors.Anchor, session.Bound(s.timeouts.Element))
	if err != nil {
		return fmt.Errorf("locate checkbox: %w", err)
	}

	return frame.Click(session.ctx, anchor)
}

// checkSolved returns nil when the checkmark carries the solved attribute. The
// widget is located again on every call.
func (s *Solver) checkSolved(session *Session, browser Browser) error {
	widget, err := browser.Locate(session.ctx, s.selectors.Widget, session.Bound(s.timeouts.Element))
	if err != nil {
		return fmt.Errorf("locate widget: %w", err)
	}

	frame, err := browser.Frame(session.ctx, widget)
	if err != nil {
		return fmt.Errorf("enter widget frame: %w", err)
	}

	checkmark, err := frame.Locate(session.ctx, s.selectors.Checkmark, session.Bound(s.timeouts.Element))
	if err != nil {
		return fmt.Errorf("locate checkmark: %w", err)
	}

	_, ok, err := frame.Attr(session.ctx, checkmark, s.selectors.SolvedAttribute)
	if err != nil {
		return err
	}
	if !ok {
		return errNotSolvedYet
	}
	return nil
}

// challengeFrame finds the popup iframe anew, it is re-rendered between steps.
func (s *Solver) challengeFrame(session *Session, browser Browser) (Browser, error) {
	element, err := browser.Locate(session.ctx, s.selectors.ChallengeFrame, session.Bound(s.timeouts.Element))
	if err != nil {
		return nil, fmt.Errorf("locate challenge frame: %w", err)
	}

	frame, err := browser.Frame(session.ctx, element)
	if err != nil {
		return nil, fmt.Errorf("enter challenge frame: %w", err)
	}
	return frame, nil
}

func (s *Solver) enterAudio(session *Session, browser Browser) error {
	perAttempt := s.timeouts.Visible / time.Duration(s.visibleRetry.attempts())

	_, err := s.visibleRetry.Do(session.ctx, func(attempt int) error {
		return browser.WaitVisible(session.ctx, s.selectors.ChallengeFrame, session.Bound(perAttempt))
	})
	if err != nil {
		return fmt.Errorf("challenge frame not visible: %w", err)
	}

	frame, err := s.challengeFrame(session, browser)
	if err != nil {
		return err
	}

	button, err := frame.Locate(session.ctx, s.selectors.AudioButton, session.Bound(s.timeouts.Element))
	if err != nil {
		return fmt.Errorf("locate audio button: %w", err)
	}

	if err := frame.Click(session.ctx, button); err != nil {
		return fmt.Errorf("click audio button: %w", err)
	}
	return nil
}

// audioSource reads the audio URL from the player, falling back to the
// download link in the frame markup.
func (s *Solver) audioSource(session *Session, browser Browser) (string, error) {
	var src string

	_, err := s.sourceRetry.Do(session.ctx, func(attempt int) error {
		frame, err := s.challengeFrame(session, browser)
		if err != nil {
			return err
		}

		if player, err := frame.Locate(session.ctx, s.selectors.AudioSource, session.Bound(s.timeouts.Element)); err == nil {
			value, ok, err := frame.Attr(session.ctx, player, "src")
			if err == nil && ok && strings.TrimSpace(value) != "" {
				src = strings.TrimSpace(value)
				return checkAudioURL(src)
			}
		}

		body, err := frame.Locate(session.ctx, CSS("body"), session.Bound(s.timeouts.Element))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNoAudioSource, err)
		}
		html, err := frame.HTML(session.ctx, body)
		if err != nil {
			return err
		}

		link, blocked, err := parseAudioLink(html, s.selectors)
		if err != nil {
			return err
		}
		if blocked {
			return Stop(fmt.Errorf("%w: automated queries blocked", ErrNoAudioSource))
		}
		if link == "" {
			return ErrNoAudioSource
		}

		src = link
		return checkAudioURL(src)
	})

	return src, err
}

func checkAudioURL(src string) error {
	parsed, err := url.Parse(src)
	if err != nil {
		return Stop(fmt.Errorf("%w: %v", ErrNoAudioSource, err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Stop(fmt.Errorf("%w: unsupported url %q", ErrNoAudioSource, src))
	}
	return nil
}

func (s *Solver) typeAnswer(session *Session, browser Browser, answer string) error {
	frame, err := s.challengeFrame(session, browser)
	if err != nil {
		return err
	}

	field, err := frame.Locate(session.ctx, s.selectors.AudioResponse, session.Bound(s.timeouts.Element))
	if err != nil {
		return fmt.Errorf("locate answer field: %w", err)
	}

	if err := frame.Type(session.ctx, field, answer); err != nil {
		return fmt.Errorf("type answer: %w", err)
	}

	if err := session.Sleep(s.timeouts.KeyDelay); err != nil {
		return err
	}

	if err := frame.PressKey(session.ctx, field, KeyEnter); err != nil {
		return fmt.Errorf("confirm answer: %w", err)
	}
	return nil
}

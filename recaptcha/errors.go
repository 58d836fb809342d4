package recaptcha

import (
	"errors"
	"fmt"
)

// AbortKind names the reason a solve attempt was aborted.
type AbortKind string

const (
	KindWidgetNotFound      AbortKind = "widget-not-found"
	KindClickFailed         AbortKind = "click-failed" // never terminal, logged only
	KindAudioEntryFailed    AbortKind = "audio-entry-failed"
	KindDownloadFailed      AbortKind = "download-failed"
	KindTranscodeFailed     AbortKind = "transcode-failed"
	KindTranscriptionFailed AbortKind = "transcription-failed"
	KindSubmitFailed        AbortKind = "submit-failed"
	KindCancelled           AbortKind = "cancelled"
	KindTimeout             AbortKind = "timeout"
)

// Error lets a kind be used as an errors.Is target.
func (k AbortKind) Error() string {
	return string(k)
}

var (
	// ErrNotFound is returned by Browser.Locate when nothing matched before the timeout.
	ErrNotFound = errors.New("element not found")

	// ErrNoAudioSource means the challenge frame rendered without a usable audio link.
	ErrNoAudioSource = errors.New("no audio source in challenge frame")

	// ErrEmptyTranscript means the recognizer returned no text.
	ErrEmptyTranscript = errors.New("empty transcript")

	errNotSolvedYet = errors.New("solved indicator absent")
)

// AbortError is the cause carried by an Aborted outcome.
type AbortError struct {
	Kind  AbortKind
	State State
	Cause error
}

func NewAbortError(kind AbortKind, state State, cause error) *AbortError {
	return &AbortError{
		Kind:  kind,
		State: state,
		Cause: cause,
	}
}

func (e *AbortError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("recaptcha aborted (%s) in %s: %v", e.Kind, e.State, e.Cause)
	}
	return fmt.Sprintf("recaptcha aborted (%s) in %s", e.Kind, e.State)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// Is matches both *AbortError values of the same kind and bare AbortKind targets.
func (e *AbortError) Is(target error) bool {
	switch t := target.(type) {
	case AbortKind:
		return e.Kind == t
	case *AbortError:
		return e.Kind == t.Kind
	}
	return false
}

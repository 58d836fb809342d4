package recaptcha

import (
	"fmt"
	"time"
)

// State is a node of the solve state machine.
type State string

const (
	StateInit              State = "init"
	StateWidgetLocated     State = "widget-located"
	StateOneClickAttempted State = "one-click-attempted"
	StateAudioFallback     State = "audio-fallback"
	StateAudioDownloaded   State = "audio-downloaded"
	StateAudioTranscoded   State = "audio-transcoded"
	StateTextRecognized    State = "text-recognized"
	StateAnswerSubmitted   State = "answer-submitted"
	StateSolved            State = "solved"
	StateUnsolved          State = "unsolved"
	StateAborted           State = "aborted"
)

func (s State) terminal() bool {
	return s == StateSolved || s == StateUnsolved || s == StateAborted
}

// Status is the result class of one solve attempt.
type Status string

const (
	Solved   Status = "solved"
	Unsolved Status = "unsolved"
	Aborted  Status = "aborted"
)

// Outcome is what Solve returns. Reason and Err are set only for Aborted.
type Outcome struct {
	Status Status
	Reason AbortKind

	// Last non-terminal state the machine reached
	State State

	Err     error
	Elapsed time.Duration
}

func (o Outcome) Solved() bool {
	return o.Status == Solved
}

func (o Outcome) String() string {
	if o.Status == Aborted {
		return fmt.Sprintf("%s(%s)", o.Status, o.Reason)
	}
	return string(o.Status)
}

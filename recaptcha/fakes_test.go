package recaptcha

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// fakeWorld scripts a page that embeds the widget and the challenge popup.
type fakeWorld struct {
	mu sync.Mutex

	selectors Selectors

	widgetPresent     bool
	challengePresent  bool
	solvedAfterClick  bool
	solvedAfterSubmit bool
	audioSrc          string
	challengeHTML     string
	clickErr          error
	typeErr           error
	pressErr          error
	onAnchorClick     func()

	solved       bool
	solvedChecks int
	calls        []string
	typed        []string
	pressed      []Key
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{
		selectors:        DefaultSelectors(),
		widgetPresent:    true,
		challengePresent: true,
		audioSrc:         "https://example.com/a.mp3",
		challengeHTML:    "<body><div id=\"rc-audio\"></div></body>",
	}
}

func (w *fakeWorld) record(call string) {
	w.mu.Lock()
	w.calls = append(w.calls, call)
	w.mu.Unlock()
}

func (w *fakeWorld) called(prefix string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, call := range w.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

type fakeElement struct {
	selector Selector
	frame    string
}

func (e *fakeElement) Selector() Selector {
	return e.selector
}

// fakeBrowser is one document of the fake world: "page", "widget" or "challenge".
type fakeBrowser struct {
	world *fakeWorld
	frame string
}

func (w *fakeWorld) browser() *fakeBrowser {
	return &fakeBrowser{world: w, frame: "page"}
}

func miss(ctx context.Context, sel Selector, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.Join(ErrNotFound, errors.New(sel.String()))
	}
}

func (b *fakeBrowser) present(sel Selector) bool {
	w := b.world
	w.mu.Lock()
	defer w.mu.Unlock()

	switch b.frame {
	case "page":
		switch sel {
		case w.selectors.Widget:
			return w.widgetPresent
		case w.selectors.ChallengeFrame:
			return w.challengePresent
		}
	case "widget":
		return sel == w.selectors.Anchor || sel == w.selectors.Checkmark
	case "challenge":
		switch sel {
		case w.selectors.AudioButton, w.selectors.AudioResponse, CSS("body"):
			return true
		case w.selectors.AudioSource:
			return w.audioSrc != ""
		}
	}
	return false
}

func (b *fakeBrowser) Locate(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	b.world.record("locate:" + b.frame + ":" + sel.String())
	if !b.present(sel) {
		return nil, miss(ctx, sel, timeout)
	}
	return &fakeElement{selector: sel, frame: b.frame}, nil
}

func (b *fakeBrowser) WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error {
	b.world.record("wait-visible:" + sel.String())
	if !b.present(sel) {
		return miss(ctx, sel, timeout)
	}
	return nil
}

func (b *fakeBrowser) Click(ctx context.Context, el Element) error {
	w := b.world
	sel := el.Selector()
	w.record("click:" + sel.String())

	w.mu.Lock()
	defer w.mu.Unlock()

	if sel == w.selectors.Anchor {
		if w.onAnchorClick != nil {
			w.onAnchorClick()
		}
		if w.clickErr != nil {
			return w.clickErr
		}
		if w.solvedAfterClick {
			w.solved = true
		}
	}
	return nil
}

func (b *fakeBrowser) Type(ctx context.Context, el Element, text string) error {
	w := b.world
	w.record("type:" + el.Selector().String())
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.typeErr != nil {
		return w.typeErr
	}
	w.typed = append(w.typed, text)
	return nil
}

func (b *fakeBrowser) PressKey(ctx context.Context, el Element, key Key) error {
	w := b.world
	w.record("press:" + string(key))
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pressErr != nil {
		return w.pressErr
	}
	w.pressed = append(w.pressed, key)
	if w.solvedAfterSubmit {
		w.solved = true
	}
	return nil
}

func (b *fakeBrowser) Attr(ctx context.Context, el Element, name string) (string, bool, error) {
	w := b.world
	w.record("attr:" + el.Selector().String() + ":" + name)
	w.mu.Lock()
	defer w.mu.Unlock()

	switch el.Selector() {
	case w.selectors.Checkmark:
		w.solvedChecks++
		if w.solved && name == w.selectors.SolvedAttribute {
			return "animation: none", true, nil
		}
		return "", false, nil
	case w.selectors.AudioSource:
		if name == "src" && w.audioSrc != "" {
			return w.audioSrc, true, nil
		}
	}
	return "", false, nil
}

func (b *fakeBrowser) HTML(ctx context.Context, el Element) (string, error) {
	w := b.world
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.challengeHTML, nil
}

func (b *fakeBrowser) Frame(ctx context.Context, el Element) (Browser, error) {
	w := b.world
	switch el.Selector() {
	case w.selectors.Widget:
		return &fakeBrowser{world: w, frame: "widget"}, nil
	case w.selectors.ChallengeFrame:
		return &fakeBrowser{world: w, frame: "challenge"}, nil
	}
	return nil, errors.New("not an iframe")
}

type fakeFetcher struct {
	mu    sync.Mutex
	err   error
	srcs  []string
	paths []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, src, dir string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.srcs = append(f.srcs, src)
	if f.err != nil {
		return "", f.err
	}
	path := filepath.Join(dir, "audio.mp3")
	if err := os.WriteFile(path, []byte("ID3 fake mp3"), 0o600); err != nil {
		return "", err
	}
	f.paths = append(f.paths, path)
	return path, nil
}

type fakeTranscoder struct {
	mu    sync.Mutex
	err   error
	calls int
	outs  []string
}

func (t *fakeTranscoder) Transcode(ctx context.Context, in string, from, to Format) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if t.err != nil {
		return "", t.err
	}
	out := strings.TrimSuffix(in, filepath.Ext(in)) + "." + string(to)
	if err := os.WriteFile(out, []byte("RIFF fake wav"), 0o600); err != nil {
		return "", err
	}
	t.outs = append(t.outs, out)
	return out, nil
}

type fakeTranscriber struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
	paths []string
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.paths = append(t.paths, wavPath)
	return t.text, t.err
}

func testTimeouts() Timeouts {
	return Timeouts{
		Widget:      50 * time.Millisecond,
		Element:     50 * time.Millisecond,
		Visible:     50 * time.Millisecond,
		Settle:      time.Millisecond,
		AudioRender: time.Millisecond,
		KeyDelay:    time.Millisecond,
		Ceiling:     2 * time.Second,
	}
}

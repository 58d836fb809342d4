package recaptcha

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// RodBrowser adapts a go-rod page (or iframe page) to Browser.
type RodBrowser struct {
	page *rod.Page
}

func NewRodBrowser(page *rod.Page) *RodBrowser {
	return &RodBrowser{page: page}
}

type rodElement struct {
	selector Selector
	element  *rod.Element
}

func (el *rodElement) Selector() Selector {
	return el.selector
}

func (b *RodBrowser) Locate(ctx context.Context, sel Selector, timeout time.Duration) (Element, error) {
	element, err := b.find(ctx, sel, timeout)
	if err != nil {
		return nil, err
	}
	return &rodElement{selector: sel, element: element.CancelTimeout()}, nil
}

func (b *RodBrowser) WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error {
	element, err := b.find(ctx, sel, timeout)
	if err != nil {
		return err
	}
	if err := element.WaitVisible(); err != nil {
		return b.translate(ctx, sel, err)
	}
	return nil
}

func (b *RodBrowser) Click(ctx context.Context, el Element) error {
	element, err := unwrapRod(el)
	if err != nil {
		return err
	}
	return element.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (b *RodBrowser) Type(ctx context.Context, el Element, text string) error {
	element, err := unwrapRod(el)
	if err != nil {
		return err
	}
	return element.Context(ctx).Input(text)
}

func (b *RodBrowser) PressKey(ctx context.Context, el Element, key Key) error {
	element, err := unwrapRod(el)
	if err != nil {
		return err
	}

	var k input.Key
	switch key {
	case KeyEnter:
		k = input.Enter
	case KeyTab:
		k = input.Tab
	default:
		return fmt.Errorf("unsupported key %q", key)
	}
	return element.Context(ctx).Type(k)
}

func (b *RodBrowser) Attr(ctx context.Context, el Element, name string) (string, bool, error) {
	element, err := unwrapRod(el)
	if err != nil {
		return "", false, err
	}
	value, err := element.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (b *RodBrowser) HTML(ctx context.Context, el Element) (string, error) {
	element, err := unwrapRod(el)
	if err != nil {
		return "", err
	}
	return element.Context(ctx).HTML()
}

func (b *RodBrowser) Frame(ctx context.Context, el Element) (Browser, error) {
	element, err := unwrapRod(el)
	if err != nil {
		return nil, err
	}
	frame, err := element.Context(ctx).Frame()
	if err != nil {
		return nil, err
	}
	return NewRodBrowser(frame), nil
}

// find runs the rod query under ctx limited by timeout
func (b *RodBrowser) find(ctx context.Context, sel Selector, timeout time.Duration) (*rod.Element, error) {
	page := b.page.Context(ctx).Timeout(timeout)

	var element *rod.Element
	var err error
	if sel.XPath {
		element, err = page.ElementX(sel.Query)
	} else {
		element, err = page.Element(sel.Query)
	}
	if err != nil {
		return nil, b.translate(ctx, sel, err)
	}
	return element, nil
}

// translate turns rod's timeout into ErrNotFound unless the caller's ctx ended
func (b *RodBrowser) translate(ctx context.Context, sel Selector, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, sel)
	}
	return err
}

func unwrapRod(el Element) (*rod.Element, error) {
	element, ok := el.(*rodElement)
	if !ok || element == nil || element.element == nil {
		return nil, fmt.Errorf("element %v does not belong to a rod page", el)
	}
	return element.element, nil
}

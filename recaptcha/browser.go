package recaptcha

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Selector addresses an element either by CSS query or by XPath.
type Selector struct {
	Query string
	XPath bool
}

func CSS(query string) Selector {
	return Selector{Query: query}
}

func XPath(query string) Selector {
	return Selector{Query: query, XPath: true}
}

// Attr builds a CSS selector matching an exact attribute value, e.g. Attr("title", "reCAPTCHA").
func Attr(name, value string) Selector {
	return CSS(fmt.Sprintf(`[%s="%s"]`, name, cssQuote.Replace(value)))
}

// Inside a double-quoted CSS string only the quote and the backslash need escaping
var cssQuote = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (s Selector) String() string {
	if s.XPath {
		return "xpath:" + s.Query
	}
	return s.Query
}

// Key is a named keyboard key.
type Key string

const (
	KeyEnter Key = "Enter"
	KeyTab   Key = "Tab"
)

// Element is an opaque reference to a located node. It is only valid inside the
// frame and the state that produced it.
type Element interface {
	Selector() Selector
}

// Browser is the remote browser capability the solver drives. Every call blocks
// until the browser answered. Implementations must honour ctx.
type Browser interface {
	// Locate waits up to timeout for the first match. Misses return ErrNotFound.
	Locate(ctx context.Context, sel Selector, timeout time.Duration) (Element, error)

	// WaitVisible waits up to timeout for a match that is rendered and visible.
	WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error

	Click(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	PressKey(ctx context.Context, el Element, key Key) error

	// Attr reads an attribute. ok is false when the attribute is absent.
	Attr(ctx context.Context, el Element, name string) (value string, ok bool, err error)

	// HTML returns the outer HTML of the element.
	HTML(ctx context.Context, el Element) (string, error)

	// Frame scopes the browser to the document of an iframe element.
	Frame(ctx context.Context, el Element) (Browser, error)
}

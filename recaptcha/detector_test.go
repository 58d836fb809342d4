package recaptcha

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func document(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestIsCaptcha(t *testing.T) {
	solver := New(nil)

	cases := []struct {
		name string
		html string
		want bool
	}{
		{"widget iframe", `<iframe title="reCAPTCHA" src="https://www.google.com/recaptcha/api2/anchor"></iframe>`, true},
		{"g-recaptcha div", `<form><div class="g-recaptcha" data-sitekey="x"></div></form>`, true},
		{"unusual traffic", `<body><p>Our systems have detected unusual traffic from your computer network.</p></body>`, true},
		{"plain page", `<body><h1>Results</h1><a href="/next">next</a></body>`, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := solver.IsCaptcha(document(t, c.html)); got != c.want {
				t.Fatalf("IsCaptcha = %v, want %v", got, c.want)
			}
		})
	}

	if solver.IsCaptcha(nil) {
		t.Fatalf("nil document is not a captcha")
	}
}

func TestIsCaptchaCustomSelector(t *testing.T) {
	solver := New(nil).SetCaptchaSelector("#challenge")

	if !solver.IsCaptcha(document(t, `<div id="challenge"></div>`)) {
		t.Fatalf("custom selector not used")
	}
	if solver.IsCaptcha(document(t, `<div class="g-recaptcha"></div>`)) {
		t.Fatalf("custom selector must replace the defaults")
	}
}

func TestParseAudioLink(t *testing.T) {
	selectors := DefaultSelectors()

	link, blocked, err := parseAudioLink(`<a class="rc-audiochallenge-tdownload-link" href=" https://x/a.mp3 ">dl</a>`, selectors)
	if err != nil || blocked || link != "https://x/a.mp3" {
		t.Fatalf("download link: %q %v %v", link, blocked, err)
	}

	link, _, _ = parseAudioLink(`<audio><source src="https://x/b.mp3"></audio>`, selectors)
	if link != "https://x/b.mp3" {
		t.Fatalf("audio element: %q", link)
	}

	_, blocked, _ = parseAudioLink(`<div class="rc-doscaptcha-header">Try again later</div><audio src="https://x/c.mp3"></audio>`, selectors)
	if !blocked {
		t.Fatalf("blocked screen not detected")
	}

	link, blocked, _ = parseAudioLink(`<div id="rc-audio"></div>`, selectors)
	if link != "" || blocked {
		t.Fatalf("expected nothing, got %q %v", link, blocked)
	}
}

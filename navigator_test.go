package navigator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
)

const captchaPage = `<html><head><title>Sorry</title></head><body>
<form id="captcha-form"><div class="g-recaptcha" data-sitekey="key"></div><button id="submit">Submit</button></form>
</body></html>`

const plainPage = `<html><head><title>Results</title></head><body><div id="main"><a href="/next">next</a></div></body></html>`

type stubSolver struct {
	captcha bool
}

func (s stubSolver) IsCaptcha(*goquery.Document) bool {
	return s.captcha
}

func (s stubSolver) SolveCaptcha(context.Context, *rod.Page) (bool, error) {
	return false, errors.New("no browser")
}

func serve(t *testing.T, status int, body string) (*httptest.Server, *string) {
	t.Helper()
	userAgent := new(string)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*userAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, userAgent
}

func TestNewNavigator(t *testing.T) {
	if _, ok := NewNavigator(nil).(*GentelmanNavigator); !ok {
		t.Fatalf("default navigator must be the HTTP one")
	}
	if _, ok := NewNavigator(&Model{Chrome: true}).(*ChromeNavigator); !ok {
		t.Fatalf("Chrome model must give a ChromeNavigator")
	}
}

func TestGentelmanNavigatorCaptchaSelector(t *testing.T) {
	server, userAgent := serve(t, http.StatusOK, captchaPage)

	navigator := NewNavigator(&Model{CaptchaSelector: ".g-recaptcha", UserAgent: "navigator-test"})
	defer navigator.Close()

	if err := navigator.Navigate(context.Background(), server.URL); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if navigator.GetNavigateStatus() != http.StatusOK {
		t.Fatalf("unexpected status %d", navigator.GetNavigateStatus())
	}
	if !navigator.HasCaptcha() {
		t.Fatalf("captcha not detected")
	}
	if title := navigator.GetCrawler().Find("title").Text(); title != "Sorry" {
		t.Fatalf("unexpected title %q", title)
	}
	if *userAgent != "navigator-test" {
		t.Fatalf("user agent not sent, got %q", *userAgent)
	}
}

func TestGentelmanNavigatorInvertedSelector(t *testing.T) {
	server, _ := serve(t, http.StatusOK, captchaPage)

	navigator := NewNavigator(&Model{CaptchaSelector: "#main", CaptchaSelectorInverted: true})
	if err := navigator.Navigate(context.Background(), server.URL); err != nil {
		t.Fatal(err)
	}
	if !navigator.HasCaptcha() {
		t.Fatalf("missing #main must mean captcha")
	}
}

func TestGentelmanNavigatorAsksSolver(t *testing.T) {
	server, _ := serve(t, http.StatusOK, plainPage)

	navigator := NewNavigator(nil)
	navigator.SetCaptchaSolver(stubSolver{captcha: true})

	if err := navigator.Navigate(context.Background(), server.URL); err != nil {
		t.Fatal(err)
	}
	if !navigator.HasCaptcha() {
		t.Fatalf("solver detection ignored")
	}

	navigator.SetCaptchaSolver(stubSolver{captcha: false})
	if err := navigator.Navigate(context.Background(), server.URL); err != nil {
		t.Fatal(err)
	}
	if navigator.HasCaptcha() {
		t.Fatalf("captcha flag not reset between navigations")
	}
}

func TestGentelmanNavigatorStatus(t *testing.T) {
	notFound, _ := serve(t, http.StatusNotFound, plainPage)
	navigator := NewNavigator(nil)
	if err := navigator.Navigate(context.Background(), notFound.URL); err != nil {
		t.Fatalf("404 is a valid response: %v", err)
	}

	broken, _ := serve(t, http.StatusInternalServerError, "oops")
	err := navigator.Navigate(context.Background(), broken.URL)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected status error, got %v", err)
	}
	if navigator.GetLastError() != err {
		t.Fatalf("last error not recorded")
	}
}

func TestGentelmanNavigatorReadOnlySelector(t *testing.T) {
	server, _ := serve(t, http.StatusOK, plainPage)

	navigator := NewNavigator(&Model{ReadOnlySelector: "#main"})
	if err := navigator.Navigate(context.Background(), server.URL); err != nil {
		t.Fatal(err)
	}
	crawler := navigator.GetCrawler()
	if crawler.Find("title").Length() != 0 || crawler.Find("a").Length() != 1 {
		t.Fatalf("crawler must hold only #main")
	}
}

func TestGentelmanNavigatorCancelled(t *testing.T) {
	server, _ := serve(t, http.StatusOK, plainPage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	navigator := NewNavigator(nil)
	if err := navigator.Navigate(ctx, server.URL); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWriteAndFormatURL(t *testing.T) {
	navigator := &CommonNavigator{}

	if err := navigator.writeAndFormatURL("example.com/search?q=go"); err != nil {
		t.Fatal(err)
	}
	if navigator.Url != "http://example.com/search?q=go" || navigator.Domen != "example.com" || navigator.Protocol != "http" {
		t.Fatalf("unexpected %q %q %q", navigator.Url, navigator.Domen, navigator.Protocol)
	}

	for _, bad := range []string{"ftp://example.com", "https://", "http://exa mple.com"} {
		if err := navigator.writeAndFormatURL(bad); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("%q: expected ErrInvalidURL, got %v", bad, err)
		}
	}
}

func TestCalculateTriesCount(t *testing.T) {
	navigator := &CommonNavigator{}
	if navigator.calculateTriesCount() != 1 {
		t.Fatalf("without proxies there is a single try")
	}

	navigator.SetProxyGetter(StaticProxy("http://127.0.0.1:3128"))
	if navigator.calculateTriesCount() != NAVIGATION_TRIES_COUNT {
		t.Fatalf("proxies allow retries")
	}

	navigator.NoMoreTry = true
	if navigator.calculateTriesCount() != 1 {
		t.Fatalf("NoMoreTry must win")
	}
}

func TestStaticProxy(t *testing.T) {
	if _, err := StaticProxy("").GetProxy(); !errors.Is(err, ErrNoProxy) {
		t.Fatalf("expected ErrNoProxy, got %v", err)
	}
	if p, err := StaticProxy("socks5://h:1080").GetProxy(); err != nil || p != "socks5://h:1080" {
		t.Fatalf("unexpected %q %v", p, err)
	}
}

func TestModelCaptchaAttempts(t *testing.T) {
	if (&Model{}).captchaAttempts() != 1 {
		t.Fatalf("zero attempts must mean one")
	}
	if (&Model{CaptchaAttempts: 3}).captchaAttempts() != 3 {
		t.Fatalf("attempts ignored")
	}
}

// Needs a Chrome binary and network access
func TestChromeNavigatorLive(t *testing.T) {
	if os.Getenv("NAVIGATOR_LIVE") != "1" {
		t.Skip("set NAVIGATOR_LIVE=1 to run against a real browser")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	navigator := NewNavigator(&Model{
		Chrome:          true,
		Stealth:         true,
		CaptchaSelector: `iframe[title="reCAPTCHA"]`,
	})
	defer navigator.Close()

	if err := navigator.Navigate(ctx, "https://www.google.com/recaptcha/api2/demo"); err != nil {
		t.Fatal(err)
	}
	if !navigator.HasCaptcha() {
		t.Fatalf("demo page must show the widget")
	}

	title, err := navigator.(*ChromeNavigator).Evaluate(`() => document.title`)
	if err != nil || title == "" {
		t.Fatalf("evaluate: %q %v", title, err)
	}
}

func TestChromeNavigatorWithoutPage(t *testing.T) {
	navigator := NewNavigator(&Model{Chrome: true}).(*ChromeNavigator)

	if _, err := navigator.Evaluate(`() => 1`); !errors.Is(err, ErrNoPage) {
		t.Fatalf("expected ErrNoPage, got %v", err)
	}
	if err := navigator.Submit(context.Background(), "#submit"); !errors.Is(err, ErrNoPage) {
		t.Fatalf("expected ErrNoPage, got %v", err)
	}
	if err := navigator.Close(); err != nil {
		t.Fatalf("closing an unused navigator: %v", err)
	}
}

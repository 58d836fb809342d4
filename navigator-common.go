package navigator

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

const NAVIGATION_TRIES_COUNT int = 5

// Common data for both navigators Chrome and Gentelman
type CommonNavigator struct {

	// Current url
	Url string

	// Current domen
	Domen string

	// Current protocol (HTTP, HTTPS)
	Protocol string

	// Last navigate status
	NavigateStatus int

	// Last navigate error
	LastError error

	// Navigation model
	Model *Model

	// Current DOM tree composed into query [github.com/PuerkitoBio/goquery] document
	Crawler *goquery.Document

	// Captcha seen on the current page and not solved
	Captcha bool

	// Captcha solver
	CptchSolver CaptchaSolver

	// Proxy getter
	PrxGetter ProxyGetter

	// Flag that tell as if we cannot try more then one navigation
	NoMoreTry bool

	// Check if this a just created client and only first URL
	JustCreated bool

	Logger zerolog.Logger
}

// Interface method implementation

func (navigator *CommonNavigator) SetModel(model *Model) {
	if model == nil {
		model = new(Model)
	}
	navigator.Model = model
}

func (navigator *CommonNavigator) SetLogger(logger zerolog.Logger) {
	navigator.Logger = logger
}

func (navigator *CommonNavigator) GetCrawler() *goquery.Document {
	if navigator.Crawler == nil {
		navigator.initEmptyCrawler()
	}
	return navigator.Crawler
}

func (navigator *CommonNavigator) GetNavigateStatus() int {
	return navigator.NavigateStatus
}

func (navigator *CommonNavigator) GetLastError() error {
	return navigator.LastError
}

func (navigator *CommonNavigator) HasCaptcha() bool {
	return navigator.Captcha
}

func (navigator *CommonNavigator) SetCaptchaSolver(solver CaptchaSolver) {
	navigator.CptchSolver = solver
}

func (navigator *CommonNavigator) SetProxyGetter(getter ProxyGetter) {
	navigator.PrxGetter = getter
}

func (navigator *CommonNavigator) GetUrl() string {
	return navigator.Url
}

// Initialize empty crawler
func (navigator *CommonNavigator) initEmptyCrawler() {
	navigator.Crawler, _ = goquery.NewDocumentFromReader(bytes.NewBuffer([]byte("")))
}

// Writing initial data before navigate
func (navigator *CommonNavigator) writeAndFormatURL(rawUrl string) error {
	parsed, err := url.Parse(strings.TrimSpace(rawUrl))
	if err != nil {
		return ErrInvalidURL
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("http://" + strings.TrimSpace(rawUrl))
		if err != nil {
			return ErrInvalidURL
		}
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return ErrInvalidURL
	}

	navigator.Url = parsed.String()
	navigator.Domen = parsed.Host
	navigator.Protocol = strings.ToLower(parsed.Scheme)
	navigator.Captcha = false

	return nil
}

// Calculate how many tries we can navigate
func (navigator *CommonNavigator) calculateTriesCount() int {
	// Якщо вже встановлено флаг, що не більше одніїї спроби
	if navigator.NoMoreTry {
		return 1
	}

	// Якщо ми не можемо змінити проксі - тоді не більше однієї спроби
	if navigator.PrxGetter == nil {
		return 1
	}

	return NAVIGATION_TRIES_COUNT
}

// Create crawler from response
func (navigator *CommonNavigator) createCrawlerFromHTML(html string) error {
	crawler, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return err
	}

	if navigator.Model.ReadOnlySelector != "" {
		node := crawler.Find(navigator.Model.ReadOnlySelector)
		if node.Size() == 0 {
			navigator.initEmptyCrawler()
		} else {
			navigator.Crawler = goquery.NewDocumentFromNode(node.Get(0))
		}
	} else {
		navigator.Crawler = crawler
	}

	return nil
}

// Captcha on the current crawler. Model.CaptchaSelector wins over the solver's own detection
func (navigator *CommonNavigator) detectCaptcha() bool {
	if navigator.Crawler == nil {
		return false
	}

	if navigator.Model.CaptchaSelector != "" {
		found := navigator.Crawler.Find(navigator.Model.CaptchaSelector).Length() > 0
		return found != navigator.Model.CaptchaSelectorInverted
	}

	if navigator.CptchSolver != nil {
		return navigator.CptchSolver.IsCaptcha(navigator.Crawler)
	}

	return false
}

// Valid repsponses 200 and 404
func (navigator *CommonNavigator) isValidResponse(code int) bool {
	return code == 200 || code == 404
}

func (navigator *CommonNavigator) pageLoadTimeout() time.Duration {
	if navigator.Model.NavigationTimeout > 0 {
		return time.Duration(navigator.Model.NavigationTimeout) * time.Second
	}
	return DEFAULT_BROWSER_NAVIGATION_TIMEOUT * time.Second
}

// Pause in seconds that ends early with ctx
func (navigator *CommonNavigator) delay(ctx context.Context, seconds int) error {
	if seconds <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(time.Duration(seconds) * time.Second)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

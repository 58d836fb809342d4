package navigator

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	DEFAULT_BROWSER_NAVIGATION_TIMEOUT = 60
)

type ChromeNavigator struct {
	CommonNavigator

	Browser *rod.Browser
	Page    *rod.Page

	launcher *launcher.Launcher
}

// Interface implementation
func (navigator *ChromeNavigator) Close() error {
	errPage := navigator.closePage()
	errBrowser := navigator.closeBrowser()
	return errors.Join(errPage, errBrowser)
}

func (navigator *ChromeNavigator) closePage() error {
	var err error
	if navigator.Page != nil {
		err = navigator.Page.Close()
		navigator.Page = nil
	}
	return err
}

func (navigator *ChromeNavigator) closeBrowser() error {
	var err error
	if navigator.Browser != nil && !navigator.Model.UseSystemChrome {
		err = navigator.Browser.Close()
	}
	navigator.Browser = nil

	if navigator.launcher != nil {
		navigator.launcher.Kill()
		navigator.launcher.Cleanup()
		navigator.launcher = nil
	}
	return err
}

// Live page the captcha solver works on
func (navigator *ChromeNavigator) GetPage() *rod.Page {
	return navigator.Page
}

// Interface implementation
func (navigator *ChromeNavigator) Navigate(ctx context.Context, url string) error {
	if err := navigator.writeAndFormatURL(url); err != nil {
		return err
	}

	navigator.initEmptyCrawler()
	navigator.LastError = nil

	return navigator.navigateUrl(ctx)
}

// Evaluate script on the current page
func (navigator *ChromeNavigator) Evaluate(script string, args ...interface{}) (string, error) {
	if navigator.Page == nil {
		return "", ErrNoPage
	}

	result, err := navigator.Page.Eval(script, args...)
	if err != nil {
		return "", err
	}
	return result.Value.Str(), nil
}

func (navigator *ChromeNavigator) GetActualUrl() string {
	if navigator.Page == nil {
		return navigator.Url
	}
	info, err := navigator.Page.Info()
	if err != nil {
		return navigator.Url
	}
	return info.URL
}

// Submit clicks selector (e.g. the form button behind a solved captcha) and
// waits for the resulting page.
func (navigator *ChromeNavigator) Submit(ctx context.Context, selector string) error {
	if navigator.Page == nil {
		return ErrNoPage
	}

	element, err := navigator.Page.Context(ctx).Timeout(navigator.pageLoadTimeout()).Element(selector)
	if err != nil {
		return fmt.Errorf("submit %s: %w", selector, err)
	}
	element = element.CancelTimeout()

	err = navigator.WaitTotalLoad(ctx, func(page *rod.Page) error {
		return element.Context(page.GetContext()).Click(proto.InputMouseButtonLeft, 1)
	})
	if err != nil {
		return fmt.Errorf("submit %s: %w", selector, err)
	}

	return navigator.refreshCrawler()
}

func (navigator *ChromeNavigator) navigateUrl(ctx context.Context) error {
	for i := 0; i < navigator.calculateTriesCount(); i++ {
		if i > 0 {
			// Нова спроба - новий браузер, а з ним і новий проксі
			navigator.Close()
		} else if navigator.Page != nil {
			if err := navigator.delay(ctx, navigator.Model.DelayBeforeNavigate); err != nil {
				navigator.LastError = err
				break
			}
		}

		if err := ctx.Err(); err != nil {
			navigator.LastError = err
			break
		}

		if err := navigator.createClientIfNeed(); err != nil {
			navigator.LastError = err
			break
		}

		log := navigator.Logger.With().Str("url", navigator.Url).Int("try", i+1).Logger()

		err := navigator.WaitTotalLoad(ctx, func(page *rod.Page) error {
			return page.Navigate(navigator.Url)
		})
		if err != nil {
			log.Warn().Err(err).Msg("navigation failed")
			navigator.LastError = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if err := navigator.delay(ctx, navigator.Model.DelayBeforeRead); err != nil {
			navigator.LastError = err
			break
		}

		if err := navigator.refreshCrawler(); err != nil {
			navigator.LastError = err
			continue
		}

		log.Debug().Int("status", navigator.NavigateStatus).Msg("page loaded")

		if err := navigator.solveCaptcha(ctx); err != nil {
			navigator.LastError = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if navigator.isValidResponse(navigator.NavigateStatus) {
			navigator.LastError = nil
			break
		}

		navigator.LastError = fmt.Errorf("unexpected status %d", navigator.NavigateStatus)
	}

	return navigator.LastError
}

// Run action (navigate, reload, click) and wait for the document response and the page load
func (navigator *ChromeNavigator) WaitTotalLoad(ctx context.Context, action func(*rod.Page) error) error {
	if navigator.Page == nil {
		return ErrNoPage
	}

	status, err := navigator.waitResponseAndLoad(ctx, action)
	if err != nil {
		return err
	}

	navigator.NavigateStatus = status
	return nil
}

func (navigator *ChromeNavigator) waitResponseAndLoad(ctx context.Context, action func(*rod.Page) error) (int, error) {
	page := navigator.Page.Context(ctx).Timeout(navigator.pageLoadTimeout())
	defer page.CancelTimeout()

	// Статус відповіді на запит документа
	var status int

	// Функція, що спрацює лише коли отримаємо відповідь на запит
	waitResponse := page.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
			return false
		}
		status = e.Response.Status
		return true
	})

	var waitEventLoad func()
	if navigator.Model.NavigationSelector == "" {
		waitEventLoad = page.WaitNavigation(navigator.pageLoadEvent())
	}

	if err := action(page); err != nil {
		return 0, navigator.loadError(ctx, page, err)
	}

	// Канал сигналізації, що сторінка завантажена
	waitLoad := make(chan error, 1)

	go func() {
		defer handleErrorWithErrorChan(waitLoad)

		waitResponse()
		if page.GetContext().Err() != nil {
			waitLoad <- ErrResponseTimeout
			return
		}

		if waitEventLoad != nil {
			waitEventLoad()
			waitLoad <- nil
			return
		}
		waitLoad <- page.WaitElementsMoreThan(navigator.Model.NavigationSelector, 0)
	}()

	select {
	case err := <-waitLoad:
		if err != nil {
			return 0, navigator.loadError(ctx, page, err)
		}
		if page.GetContext().Err() != nil {
			return 0, navigator.loadError(ctx, page, ErrNavigationTimeout)
		}
		return status, nil
	case <-page.GetContext().Done():
		return 0, navigator.loadError(ctx, page, ErrNavigationTimeout)
	}
}

// Caller's cancellation wins over the page timeout
func (navigator *ChromeNavigator) loadError(ctx context.Context, page *rod.Page, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, ErrResponseTimeout) || errors.Is(err, ErrNavigationTimeout) {
		return err
	}
	if page.GetContext().Err() != nil {
		return ErrNavigationTimeout
	}
	return err
}

// Get load event name
func (navigator *ChromeNavigator) pageLoadEvent() proto.PageLifecycleEventName {
	switch navigator.Model.NavigationWaitfor {
	case 1:
		return proto.PageLifecycleEventNameNetworkAlmostIdle
	case 2:
		return proto.PageLifecycleEventNameNetworkIdle
	case 3:
		return proto.PageLifecycleEventNameLoad
	default:
		return proto.PageLifecycleEventNameDOMContentLoaded
	}
}

func (navigator *ChromeNavigator) refreshCrawler() error {
	if navigator.Page == nil {
		return ErrNoPage
	}

	html, err := navigator.Page.HTML()
	if err != nil {
		return fmt.Errorf("read HTML from page: %w", err)
	}

	if err := navigator.createCrawlerFromHTML(html); err != nil {
		return fmt.Errorf("create crawler from HTML: %w", err)
	}
	return nil
}

// If page is nil - create new page
func (navigator *ChromeNavigator) createClientIfNeed() error {
	if navigator.Page != nil {
		navigator.JustCreated = false
		return nil
	}

	if navigator.Browser == nil {
		browser, err := navigator.createBrowser()
		if err != nil {
			return err
		}
		navigator.Browser = browser
	}

	var page *rod.Page
	var err error
	if navigator.Model.Stealth {
		page, err = stealth.Page(navigator.Browser)
	} else {
		page, err = navigator.Browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	if navigator.Model.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: navigator.Model.UserAgent}); err != nil {
			page.Close()
			return fmt.Errorf("set user agent: %w", err)
		}
	}

	navigator.Page = page
	navigator.JustCreated = true

	return nil
}

func (navigator *ChromeNavigator) createBrowser() (*rod.Browser, error) {
	var u string
	var err error

	var useSystemChrome bool = navigator.Model.UseSystemChrome

	// Пробуємо системний хром якщо потрібен.
	// В випадку помилки будемо запускатись стандартно
	if useSystemChrome {
		u, err = launcher.NewUserMode().Launch()
		if err != nil {
			navigator.Logger.Warn().Err(err).Msg("system chrome unavailable, launching a bundled one")
			useSystemChrome = false
		}
	}

	if !useSystemChrome {
		l := launcher.New().
			Headless(!navigator.Model.Visible).
			Set("blink-settings", fmt.Sprintf("imagesEnabled=%t", navigator.Model.ShowImages))

		if navigator.PrxGetter != nil {
			proxyvalue, err := navigator.PrxGetter.GetProxy()
			if err == nil {
				l.Proxy(proxyvalue)
			}
		}

		u, err = l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		navigator.launcher = l
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect chrome: %w", err)
	}

	return browser.NoDefaultDevice(), nil
}

// Solve captcha if presented. Between attempts the page is reloaded for a fresh widget
func (navigator *ChromeNavigator) solveCaptcha(ctx context.Context) error {
	attempts := navigator.Model.captchaAttempts()

	for attempt := 1; ; attempt++ {
		navigator.Captcha = navigator.detectCaptcha()
		if !navigator.Captcha || navigator.CptchSolver == nil {
			return nil
		}

		if attempt > attempts {
			return ErrCaptchaUnsolved
		}

		log := navigator.Logger.With().Str("url", navigator.Url).Int("attempt", attempt).Logger()
		log.Info().Msg("captcha detected")

		solved, err := navigator.CptchSolver.SolveCaptcha(ctx, navigator.Page)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if solved {
			log.Info().Msg("captcha solved")
			navigator.Captcha = false

			if err := navigator.delay(ctx, navigator.Model.DelayAfterSolve); err != nil {
				return err
			}
			return navigator.refreshCrawler()
		}

		log.Warn().Err(err).Msg("captcha not solved")
		if attempt == attempts {
			if err != nil {
				return fmt.Errorf("%w: %w", ErrCaptchaUnsolved, err)
			}
			return ErrCaptchaUnsolved
		}

		err = navigator.WaitTotalLoad(ctx, func(page *rod.Page) error {
			return page.Reload()
		})
		if err != nil {
			return err
		}
		if err := navigator.delay(ctx, navigator.Model.DelayBeforeRead); err != nil {
			return err
		}
		if err := navigator.refreshCrawler(); err != nil {
			return err
		}
	}
}

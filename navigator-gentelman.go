package navigator

import (
	"context"
	"fmt"

	"gopkg.in/h2non/gentleman.v2"
	"gopkg.in/h2non/gentleman.v2/plugins/proxy"
)

// GentelmanNavigator reads pages without a browser. It can tell that a page shows
// a captcha but cannot solve one, SolveCaptcha needs a live page.
type GentelmanNavigator struct {
	CommonNavigator

	Client *gentleman.Client
}

func (navigator *GentelmanNavigator) Navigate(ctx context.Context, url string) error {
	if err := navigator.writeAndFormatURL(url); err != nil {
		return err
	}

	navigator.initEmptyCrawler()
	navigator.LastError = nil

	return navigator.navigateUrl(ctx)
}

func (navigator *GentelmanNavigator) Close() error {
	navigator.destroyClient()
	return nil
}

func (navigator *GentelmanNavigator) navigateUrl(ctx context.Context) error {
	for i := 0; i < navigator.calculateTriesCount(); i++ {
		if i > 0 {
			navigator.destroyClient()
		} else if navigator.Client != nil {
			if err := navigator.delay(ctx, navigator.Model.DelayBeforeNavigate); err != nil {
				navigator.LastError = err
				break
			}
		}

		if err := ctx.Err(); err != nil {
			navigator.LastError = err
			break
		}

		navigator.createClientIfNotExist()

		request := navigator.Client.Request().URL(navigator.Url)
		request.Context.SetCancelContext(ctx)
		if navigator.Model.UserAgent != "" {
			request.SetHeader("User-Agent", navigator.Model.UserAgent)
		}

		response, err := request.Send()
		if err != nil {
			navigator.Logger.Warn().Err(err).Str("url", navigator.Url).Int("try", i+1).Msg("request failed")
			navigator.LastError = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		navigator.NavigateStatus = response.StatusCode

		if err := navigator.createCrawlerFromHTML(response.String()); err != nil {
			navigator.LastError = fmt.Errorf("create crawler from HTML: %w", err)
			continue
		}

		navigator.Captcha = navigator.detectCaptcha()
		if navigator.Captcha {
			navigator.Logger.Info().Str("url", navigator.Url).Msg("captcha detected")
		}

		if navigator.isValidResponse(navigator.NavigateStatus) {
			navigator.LastError = nil
			break
		}

		navigator.LastError = fmt.Errorf("unexpected status %d", navigator.NavigateStatus)
	}

	return navigator.LastError
}

// Create new client if not exist
func (navigator *GentelmanNavigator) createClientIfNotExist() {
	if navigator.Client != nil {
		navigator.JustCreated = false
		return
	}

	client := gentleman.New()
	client.Context.Client.Timeout = navigator.pageLoadTimeout()

	if navigator.PrxGetter != nil {
		proxyvalue, err := navigator.PrxGetter.GetProxy()
		if err == nil {
			client.Use(proxy.Set(map[string]string{"http": proxyvalue, "https": proxyvalue}))
		}
	}

	navigator.Client = client
	navigator.JustCreated = true
}

func (navigator *GentelmanNavigator) destroyClient() {
	navigator.Client = nil
}

package navigator

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
)

// Interface for captcha solver.
//
// Instance for solver we must implement outside this package. We only use existing instance
type CaptchaSolver interface {

	// Check the crawled page for a captcha. Used when Model.CaptchaSelector is empty
	IsCaptcha(*goquery.Document) bool

	// Solve captcha on the live page. Return solved status and error
	SolveCaptcha(ctx context.Context, page *rod.Page) (bool, error)
}

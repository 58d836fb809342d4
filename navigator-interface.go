package navigator

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
)

type Navigator interface {
	// Передаємо модель навігації
	SetModel(model *Model)

	SetLogger(logger zerolog.Logger)

	// Відкриваємо URL. Якщо на сторінці капча і є solver - розв'язуємо
	Navigate(ctx context.Context, url string) error

	// Статус код навігації
	GetNavigateStatus() int

	// Взяти DOM дерево після навігації
	GetCrawler() *goquery.Document

	// Чи лишилась капча на сторінці після навігації
	HasCaptcha() bool

	// Last error
	GetLastError() error

	// Set captcha solver
	SetCaptchaSolver(CaptchaSolver)

	// Set proxy getter
	SetProxyGetter(ProxyGetter)

	// Закрити клієнт
	Close() error
}

func NewNavigator(model *Model) Navigator {
	if model == nil {
		model = new(Model)
	}

	var navigator Navigator

	if model.Chrome {
		navigator = new(ChromeNavigator)
	} else {
		navigator = new(GentelmanNavigator)
	}

	navigator.SetModel(model)
	navigator.SetLogger(zerolog.Nop())

	return navigator
}

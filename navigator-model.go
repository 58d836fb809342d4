package navigator

// Модель навігатора
type Model struct {
	// Використовувати Chrome. Без нього сторінка читається HTTP клієнтом і капча лише виявляється
	Chrome bool `json:"chrome"`

	// Хром видимий
	Visible bool `json:"visible"`

	// Завантажувати зображення
	ShowImages bool `json:"show_images"`

	// Підключатись до встановленого в системі хрому
	UseSystemChrome bool `json:"use_system_chrome"`

	// Маскувати headless хром (go-rod/stealth)
	Stealth bool `json:"stealth"`

	UserAgent string `json:"user_agent"`

	// Таймаут навігації в секундах
	NavigationTimeout int `json:"navigation_timeout"`

	// Подія завантаження сторінки: 0 - DOMContentLoaded, 1 - network almost idle, 2 - network idle, 3 - load
	NavigationWaitfor int `json:"navigation_waitfor"`

	// Якщо вказано, чекаємо появи елемента замість події завантаження
	NavigationSelector string `json:"navigation_selector"`

	// Паузи в секундах
	DelayBeforeNavigate int `json:"delay_before_navigate"`
	DelayBeforeRead     int `json:"delay_before_read"`
	DelayAfterSolve     int `json:"delay_after_solve"`

	// Селектор ознаки капчі. Порожній - питаємо CaptchaSolver
	CaptchaSelector string `json:"captcha_selector"`

	// Капча є, коли селектора НЕМАЄ на сторінці
	CaptchaSelectorInverted bool `json:"captcha_selector_inverted"`

	// Скільки разів перезавантажуємо сторінку з новою капчею
	CaptchaAttempts int `json:"captcha_attempts"`

	// Будуємо crawler лише з першого елемента за цим селектором
	ReadOnlySelector string `json:"read_only_selector"`
}

// Кількість спроб розв'язати капчу, мінімум одна
func (m *Model) captchaAttempts() int {
	if m.CaptchaAttempts < 1 {
		return 1
	}
	return m.CaptchaAttempts
}

package navigator

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrNoProxy           = errors.New("no proxy available")
	ErrNoPage            = errors.New("no page opened")
	ErrResponseTimeout   = errors.New("timeout response")
	ErrNavigationTimeout = errors.New("timeout navigation")
	ErrCaptchaUnsolved   = errors.New("cannot solve captcha")
)

// Catch a panic of a rod wait helper and pass it on as an error
func handleErrorWithErrorChan(errChan chan<- error) {
	if err := recover(); err != nil {
		if errChan == nil {
			return
		}
		if errData, is := err.(error); is {
			errChan <- fmt.Errorf("panic: %w", errData)
		} else {
			errChan <- fmt.Errorf("panic: %v", err)
		}
	}
}

package recaptcha

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/h2non/gentleman.v2"
	"gopkg.in/h2non/gentleman.v2/plugins/proxy"
)

const (
	DEFAULT_FETCH_TIMEOUT   = 20 * time.Second
	DEFAULT_AUDIO_MAX_BYTES = 8 << 20
)

// AudioFetcher downloads an audio challenge into dir and returns the file path.
type AudioFetcher interface {
	Fetch(ctx context.Context, src, dir string) (string, error)
}

// HTTPFetcher downloads audio with a gentleman client.
type HTTPFetcher struct {
	client    *gentleman.Client
	userAgent string
	maxBytes  int64
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DEFAULT_FETCH_TIMEOUT
	}

	client := gentleman.New()
	client.Context.Client.Timeout = timeout

	return &HTTPFetcher{
		client:   client,
		maxBytes: DEFAULT_AUDIO_MAX_BYTES,
	}
}

// SetUserAgent makes downloads look like they come from the solving browser.
func (f *HTTPFetcher) SetUserAgent(userAgent string) *HTTPFetcher {
	f.userAgent = userAgent
	return f
}

// SetProxy routes downloads through the proxy the browser uses, so the audio
// is requested from the same address that got the challenge.
func (f *HTTPFetcher) SetProxy(server string) *HTTPFetcher {
	if server != "" {
		f.client.Use(proxy.Set(map[string]string{"http": server, "https": server}))
	}
	return f
}

func (f *HTTPFetcher) SetMaxBytes(max int64) *HTTPFetcher {
	f.maxBytes = max
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, src, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	request := f.client.Request()
	request.Context.SetCancelContext(ctx)
	request.Method("GET")
	request.URL(src)
	if f.userAgent != "" {
		request.SetHeader("User-Agent", f.userAgent)
	}

	response, err := request.Send()
	if err != nil {
		return "", fmt.Errorf("fetch audio: %w", err)
	}
	defer response.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return "", fmt.Errorf("fetch audio: unexpected status %d", response.StatusCode)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(dir, "audio-"+uuid.NewString()+".mp3")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("fetch audio: create file: %w", err)
	}

	written, err := f.copy(file, response)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("fetch audio: write file: %w", err)
	}
	if written == 0 {
		os.Remove(path)
		return "", errors.New("fetch audio: empty body")
	}

	return path, nil
}

func (f *HTTPFetcher) copy(dst io.Writer, src io.Reader) (int64, error) {
	if f.maxBytes <= 0 {
		return io.Copy(dst, src)
	}
	written, err := io.Copy(dst, io.LimitReader(src, f.maxBytes+1))
	if err == nil && written > f.maxBytes {
		err = fmt.Errorf("body exceeds %d bytes", f.maxBytes)
	}
	return written, err
}

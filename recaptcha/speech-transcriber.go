package recaptcha

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/h2non/gentleman.v2"
)

const (
	DEFAULT_WHISPER_ENDPOINT = "https://api.openai.com/v1/audio/transcriptions"
	DEFAULT_WHISPER_MODEL    = "whisper-1"
	DEFAULT_STT_TIMEOUT      = 30 * time.Second
)

// SpeechTranscriber turns a wav file into text.
type SpeechTranscriber interface {
	Transcribe(ctx context.Context, wavPath string) (string, error)
}

// WhisperTranscriber talks to an OpenAI-compatible transcription endpoint.
type WhisperTranscriber struct {
	client   *gentleman.Client
	endpoint string
	token    string
	model    string
	language string
	retry    RetryBudget

	// Some self-hosted servers handle a single request at a time
	serialize bool
	mu        sync.Mutex
}

type TranscriberOption func(*WhisperTranscriber)

func WithToken(token string) TranscriberOption {
	return func(t *WhisperTranscriber) {
		t.token = token
	}
}

func WithModel(model string) TranscriberOption {
	return func(t *WhisperTranscriber) {
		t.model = model
	}
}

func WithLanguage(language string) TranscriberOption {
	return func(t *WhisperTranscriber) {
		t.language = language
	}
}

func WithRequestTimeout(timeout time.Duration) TranscriberOption {
	return func(t *WhisperTranscriber) {
		t.client.Context.Client.Timeout = timeout
	}
}

// WithRequestRetry sets how transient failures (network, 429, 5xx) are retried.
func WithRequestRetry(budget RetryBudget) TranscriberOption {
	return func(t *WhisperTranscriber) {
		t.retry = budget
	}
}

func WithSerializedRequests(serialize bool) TranscriberOption {
	return func(t *WhisperTranscriber) {
		t.serialize = serialize
	}
}

func NewWhisperTranscriber(endpoint string, opts ...TranscriberOption) *WhisperTranscriber {
	if endpoint == "" {
		endpoint = DEFAULT_WHISPER_ENDPOINT
	}

	client := gentleman.New()
	client.Context.Client.Timeout = DEFAULT_STT_TIMEOUT

	t := &WhisperTranscriber{
		client:   client,
		endpoint: endpoint,
		model:    DEFAULT_WHISPER_MODEL,
		retry:    RetryBudget{MaxAttempts: 3, Delay: time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type whisperResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, wavPath string) (string, error) {
	if t.serialize {
		t.mu.Lock()
		defer t.mu.Unlock()
	}

	var text string
	_, err := t.retry.Do(ctx, func(attempt int) error {
		var err error
		text, err = t.send(ctx, wavPath)
		return err
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (t *WhisperTranscriber) send(ctx context.Context, wavPath string) (string, error) {
	body, contentType, err := t.form(wavPath)
	if err != nil {
		return "", Stop(err)
	}
	if err := ctx.Err(); err != nil {
		return "", Stop(err)
	}

	request := t.client.Request()
	request.Context.SetCancelContext(ctx)
	request.Method("POST")
	request.URL(t.endpoint)
	request.SetHeader("Content-Type", contentType)
	if t.token != "" {
		request.SetHeader("Authorization", "Bearer "+t.token)
	}
	request.Body(body)

	response, err := request.Send()
	if err != nil {
		return "", fmt.Errorf("whisper: request: %w", err)
	}
	defer response.Close()

	payload := whisperResponse{}
	decodeErr := response.JSON(&payload)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		err := fmt.Errorf("whisper: status %d", response.StatusCode)
		if decodeErr == nil && payload.Error != nil {
			err = fmt.Errorf("whisper: status %d: %s", response.StatusCode, payload.Error.Message)
		}
		if response.StatusCode == 429 || response.StatusCode >= 500 {
			return "", err
		}
		return "", Stop(err)
	}

	if decodeErr != nil {
		return "", Stop(fmt.Errorf("whisper: parse response: %w", decodeErr))
	}
	return payload.Text, nil
}

// form builds the multipart body. The file part keeps the .wav name, servers
// detect the container from it.
func (t *WhisperTranscriber) form(wavPath string) (io.Reader, string, error) {
	file, err := os.Open(wavPath)
	if err != nil {
		return nil, "", fmt.Errorf("whisper: open audio: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("whisper: read audio: %w", err)
	}

	fields := map[string]string{
		"model":           t.model,
		"response_format": "json",
	}
	if t.language != "" {
		fields["language"] = t.language
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

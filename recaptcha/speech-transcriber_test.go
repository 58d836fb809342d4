package recaptcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func wavFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	if err := os.WriteFile(path, []byte("RIFF fake wav"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWhisperTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("file part: %v", err)
		} else if !strings.HasSuffix(header.Filename, ".wav") {
			t.Errorf("file part must keep the wav name, got %q", header.Filename)
		}
		if got := r.FormValue("model"); got != "whisper-large" {
			t.Errorf("unexpected model %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("unexpected language %q", got)
		}

		json.NewEncoder(w).Encode(map[string]string{"text": "Cat Dog."})
	}))
	defer server.Close()

	transcriber := NewWhisperTranscriber(server.URL,
		WithToken("secret"),
		WithModel("whisper-large"),
		WithLanguage("en"),
	)

	text, err := transcriber.Transcribe(context.Background(), wavFixture(t))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "Cat Dog." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestWhisperRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"text":"hello"}`))
	}))
	defer server.Close()

	transcriber := NewWhisperTranscriber(server.URL, WithRequestRetry(RetryBudget{MaxAttempts: 3}))

	text, err := transcriber.Transcribe(context.Background(), wavFixture(t))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if n := atomic.LoadInt32(&calls); text != "hello" || n != 2 {
		t.Fatalf("expected hello after 2 calls, got %q after %d", text, n)
	}
}

func TestWhisperClientErrorIsFinal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer server.Close()

	transcriber := NewWhisperTranscriber(server.URL, WithRequestRetry(RetryBudget{MaxAttempts: 3}))

	_, err := transcriber.Transcribe(context.Background(), wavFixture(t))
	if err == nil || !strings.Contains(err.Error(), "invalid api key") {
		t.Fatalf("expected the server message, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", n)
	}
}

func TestWhisperMissingFile(t *testing.T) {
	transcriber := NewWhisperTranscriber("http://127.0.0.1:1", WithRequestRetry(RetryBudget{MaxAttempts: 3}))
	if _, err := transcriber.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestWhisperSerializedRequests(t *testing.T) {
	var inFlight, peak int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	transcriber := NewWhisperTranscriber(server.URL, WithSerializedRequests(true))
	path := wavFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := transcriber.Transcribe(context.Background(), path); err != nil {
				t.Errorf("transcribe: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&peak); n != 1 {
		t.Fatalf("expected one request at a time, peak was %d", n)
	}
}

package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func detect(t *testing.T, status int, body string) error {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	defer server.Close()

	root := newRootCmd()
	root.SetArgs([]string{"detect", server.URL, "--json"})
	return root.Execute()
}

func TestDetectCommand(t *testing.T) {
	if err := detect(t, http.StatusOK, `<div class="g-recaptcha"></div>`); err != nil {
		t.Fatalf("detect: %v", err)
	}
}

// A failed navigation comes back from Execute instead of exiting the process
func TestDetectCommandReturnsError(t *testing.T) {
	if err := detect(t, http.StatusInternalServerError, "oops"); err == nil {
		t.Fatalf("expected an error for a 500 page")
	}
}

func TestDetectCommandNeedsURL(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"detect"})
	if err := root.Execute(); err == nil {
		t.Fatalf("missing url accepted")
	}
}

package azure

import (
	"net/http"
	"testing"
	"time"
)

func TestNew_ClientHasNoOverallTimeout(t *testing.T) {
	e, err := New("https://example.cognitiveservices.azure.com", "key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.client.Timeout != 0 {
		t.Errorf("client timeout = %v, want none so large uploads are bounded by ctx only", e.client.Timeout)
	}

	custom := &http.Client{Timeout: time.Second}
	e, err = New("https://example.cognitiveservices.azure.com", "key", WithHTTPClient(custom))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.client != custom {
		t.Error("WithHTTPClient not applied")
	}
}

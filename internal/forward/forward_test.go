package forward

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("super secret signing key"))

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Enabled:     true,
		WorkspaceID: "ws-1",
		SharedKey:   testKey,
		Endpoint:    endpoint,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientDisabled(t *testing.T) {
	c, err := NewClient(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient disabled: %v", err)
	}
	if c != nil {
		t.Error("disabled config returned a client, want nil")
	}
}

func TestNewClientRejectsBadKey(t *testing.T) {
	_, err := NewClient(Config{Enabled: true, WorkspaceID: "ws", SharedKey: "not-base64!!!"})
	if err == nil {
		t.Error("invalid base64 key accepted")
	}
}

func TestSendSignsRequest(t *testing.T) {
	var gotAuth, gotDate, gotLogType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotDate = r.Header.Get("x-ms-date")
		gotLogType = r.Header.Get("Log-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	payload := map[string]any{"Level": "Error", "Message": "boom"}
	if err := c.Send(context.Background(), payload); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gotLogType != defaultLogType {
		t.Errorf("Log-Type = %q, want %q", gotLogType, defaultLogType)
	}
	if gotDate != fixed.Format(http.TimeFormat) {
		t.Errorf("x-ms-date = %q", gotDate)
	}

	// Recompute the expected signature over the canonical string.
	stringToHash := fmt.Sprintf("POST\n%d\napplication/json\nx-ms-date:%s\n/api/logs",
		len(gotBody), gotDate)
	key, _ := base64.StdEncoding.DecodeString(testKey)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(stringToHash))
	want := "SharedKey ws-1:" + base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
}

func TestSendReportsCollectorError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if err := c.Send(context.Background(), map[string]any{"a": 1}); err == nil {
		t.Error("collector 403 not surfaced as error")
	}
}

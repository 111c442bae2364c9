package notifications

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"seedshelf/internal/testsupport"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = ""
	service := NewService(cfg)
	if _, ok := service.(noopService); !ok {
		t.Fatalf("expected noop service without a topic, got %T", service)
	}
	if err := service.TestNotification(context.Background()); err != nil {
		t.Fatalf("noop service must not error: %v", err)
	}
}

type capturedRequest struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var requests []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, capturedRequest{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func newNtfyService(t *testing.T, endpoint string) Service {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = endpoint
	return NewService(cfg)
}

func TestNotifyOrganizationCompletedFormatsPayload(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusOK)
	service := newNtfyService(t, server.URL)

	if err := service.NotifyOrganizationCompleted(context.Background(), 4, 1); err != nil {
		t.Fatalf("NotifyOrganizationCompleted failed: %v", err)
	}
	if len(*requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*requests))
	}
	got := (*requests)[0]
	if !strings.Contains(got.title, "with errors") {
		t.Fatalf("expected error-marked title, got %q", got.title)
	}
	if !strings.Contains(got.body, "Organized 4") || !strings.Contains(got.body, "1 failed") {
		t.Fatalf("unexpected body %q", got.body)
	}
	if got.tags != "seedshelf,organize,completed" {
		t.Fatalf("unexpected tags %q", got.tags)
	}
}

func TestNotifyConversionFailedIsHighPriority(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusOK)
	service := newNtfyService(t, server.URL)

	if err := service.NotifyConversionFailed(context.Background(), "clip.mkv", "decoder blew up"); err != nil {
		t.Fatalf("NotifyConversionFailed failed: %v", err)
	}
	got := (*requests)[0]
	if got.priority != "high" {
		t.Fatalf("expected high priority, got %q", got.priority)
	}
	if !strings.Contains(got.body, "clip.mkv") || !strings.Contains(got.body, "decoder blew up") {
		t.Fatalf("unexpected body %q", got.body)
	}
}

func TestNotifyErrorIncludesContextLabel(t *testing.T) {
	server, requests := newCaptureServer(t, http.StatusOK)
	service := newNtfyService(t, server.URL)

	if err := service.NotifyError(context.Background(), errors.New("disk full"), "organize"); err != nil {
		t.Fatalf("NotifyError failed: %v", err)
	}
	got := (*requests)[0]
	if !strings.Contains(got.body, "organize") || !strings.Contains(got.body, "disk full") {
		t.Fatalf("unexpected body %q", got.body)
	}
}

func TestSendSurfacesServerErrors(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusForbidden)
	service := newNtfyService(t, server.URL)

	err := service.NotifyConversionCompleted(context.Background(), "movie.mp4")
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
}

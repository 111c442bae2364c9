package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"seedshelf/internal/config"
)

const userAgent = "Seedshelf/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyOrganizationCompleted(ctx context.Context, organized, failed int) error
	NotifyConversionCompleted(ctx context.Context, fileName string) error
	NotifyConversionFailed(ctx context.Context, fileName, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyOrganizationCompleted(ctx context.Context, organized, failed int) error {
	var title, message string
	if failed == 0 {
		title = "Seedshelf - Library Updated"
		message = fmt.Sprintf("Organized %d completed downloads", organized)
	} else {
		title = "Seedshelf - Library Updated (with errors)"
		message = fmt.Sprintf("Organized %d completed downloads, %d failed", organized, failed)
	}
	data := payload{
		title:   title,
		message: message,
		tags:    []string{"seedshelf", "organize", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyConversionCompleted(ctx context.Context, fileName string) error {
	fileName = strings.TrimSpace(fileName)
	data := payload{
		title:   "Seedshelf - Conversion Complete",
		message: fmt.Sprintf("Ready to watch: %s", fileName),
		tags:    []string{"seedshelf", "convert", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyConversionFailed(ctx context.Context, fileName, reason string) error {
	fileName = strings.TrimSpace(fileName)
	message := fmt.Sprintf("Conversion failed: %s", fileName)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\n%s", message, reason)
	}
	data := payload{
		title:    "Seedshelf - Conversion Failed",
		message:  message,
		tags:     []string{"seedshelf", "convert", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Seedshelf - Error",
		message:  builder.String(),
		tags:     []string{"seedshelf", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Seedshelf - Test",
		message:  "Notification system test",
		tags:     []string{"seedshelf", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyOrganizationCompleted(context.Context, int, int) error   { return nil }
func (noopService) NotifyConversionCompleted(context.Context, string) error       { return nil }
func (noopService) NotifyConversionFailed(context.Context, string, string) error  { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }

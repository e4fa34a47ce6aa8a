package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/freshledger/internal/config"
	"github.com/mamadbah2/freshledger/internal/domain/models"
)

// APIClient forwards audit entries to an external consumer over HTTP.
type APIClient struct {
	httpClient *resty.Client
	url        string
}

// NewClient builds a resty-backed webhook client from configuration.
func NewClient(cfg config.AuditWebhookConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	restyClient := resty.New()
	restyClient.
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if cfg.Token != "" {
		restyClient.SetAuthToken(cfg.Token)
	}

	return &APIClient{
		httpClient: restyClient,
		url:        cfg.URL,
	}
}

// auditEvent is the payload posted for every bulk audit entry.
type auditEvent struct {
	Type  string               `json:"type"`
	Entry models.AuditLogEntry `json:"entry"`
}

// apiError is the optional error body returned by the consumer.
type apiError struct {
	Message string `json:"message"`
}

// WriteAudit posts the entry. Any non-2xx response is an error.
func (c *APIClient) WriteAudit(ctx context.Context, entry models.AuditLogEntry) error {
	apiErr := new(apiError)

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", entry.ID).
		SetBody(auditEvent{Type: "bulk_update.audit", Entry: entry}).
		SetError(apiErr).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("forward audit entry: %w", err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("audit webhook error: code=%d, message=%s", resp.StatusCode(), apiErr.Message)
	}

	return nil
}

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mamadbah2/freshledger/internal/config"
	"github.com/mamadbah2/freshledger/internal/domain/models"
)

func TestWriteAuditPostsEntry(t *testing.T) {
	var got auditEvent
	var auth, idem string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		idem = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(config.AuditWebhookConfig{URL: srv.URL, Token: "hook-secret", Timeout: time.Second})
	entry := models.AuditLogEntry{ID: "a1", Operator: "priya", Status: models.AuditSuccess, ItemIDs: []string{"1"}}

	if err := client.WriteAudit(context.Background(), entry); err != nil {
		t.Fatalf("write audit: %v", err)
	}
	if auth != "Bearer hook-secret" || idem != "a1" {
		t.Errorf("unexpected headers auth=%q idempotency=%q", auth, idem)
	}
	if got.Type != "bulk_update.audit" || got.Entry.Operator != "priya" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestWriteAuditReportsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"consumer down"}`))
	}))
	defer srv.Close()

	client := NewClient(config.AuditWebhookConfig{URL: srv.URL})
	err := client.WriteAudit(context.Background(), models.AuditLogEntry{ID: "a2"})
	if err == nil || !strings.Contains(err.Error(), "consumer down") {
		t.Fatalf("expected consumer error, got %v", err)
	}
}

package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

func testMessage() *Message {
	month := models.Month{Year: 2025, Month: time.January}
	return &Message{
		RunID: "run-1",
		Month: month,
		ReconLogs: []models.PropertyReconLog{
			{
				Month:                  month,
				PropertyManagementName: "Sure Realty",
				Address:                "2560 Coventry St",
				TargetRent:             decimal.NewFromInt(1833),
				ActualRent:             decimal.NewFromInt(1833),
				Status:                 models.StatusMatched,
			},
			{
				Month:                  month,
				PropertyManagementName: "Gogo Property",
				Address:                "1047 Millison Pl",
				TargetRent:             decimal.NewFromInt(6800),
				ActualRent:             decimal.RequireFromString("6751.50"),
				RentVariance:           decimal.RequireFromString("-48.50"),
				Status:                 models.StatusDiscrepancy,
			},
		},
		MiscLogs: []models.MiscExpenseLog{{
			Month:              month,
			DateCleared:        time.Date(2025, time.January, 12, 0, 0, 0, 0, time.UTC),
			Description:        "Order 113-55",
			Amount:             decimal.RequireFromString("-42.17"),
			CategorySuggestion: "Amazon.com",
		}},
	}
}

func TestRender(t *testing.T) {
	body, err := Render(testMessage())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	for _, want := range []string{
		"Rent reconciliation for 2025-01 (run run-1)",
		"matched: 1  discrepancy: 1  missing: 0",
		"Rent verified:     1/2 (50.00%)",
		"- 1047 Millison Pl (Gogo Property): DISCREPANCY  rent 6751.50/6800.00",
		"- 01/12/2025 Order 113-55 -42.17 (Amazon.com)",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q, got:\n%s", want, body)
		}
	}
	if strings.Contains(body, "Managers") {
		t.Error("did not expect a managers section without manager summaries")
	}
}

func TestSMTPConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    SMTPConfig
		expectErr bool
	}{
		{name: "valid", config: SMTPConfig{Host: "smtp.example.com", Port: 587, From: "a@example.com", To: []string{"b@example.com"}}},
		{name: "missing host", config: SMTPConfig{Port: 587, From: "a@example.com", To: []string{"b@example.com"}}, expectErr: true},
		{name: "bad port", config: SMTPConfig{Host: "h", Port: 0, From: "a@example.com", To: []string{"b@example.com"}}, expectErr: true},
		{name: "no recipients", config: SMTPConfig{Host: "h", Port: 25, From: "a@example.com"}, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSMTPNotifierSends(t *testing.T) {
	cfg := &SMTPConfig{
		Host:     "smtp.example.com",
		Port:     587,
		Username: "user",
		Password: "secret",
		From:     "reconciler@example.com",
		To:       []string{"owner@example.com"},
	}
	n, err := NewSMTPNotifier(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSMTPNotifier failed: %v", err)
	}

	var (
		gotAddr string
		gotAuth smtp.Auth
		gotTo   []string
		gotMsg  []byte
	)
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, msg
		return nil
	}
	n.now = func() time.Time { return time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC) }

	if err := n.Notify(context.Background(), testMessage()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("expected relay address smtp.example.com:587, got %s", gotAddr)
	}
	if gotAuth == nil {
		t.Error("expected plain auth when a username is set")
	}
	if len(gotTo) != 1 || gotTo[0] != "owner@example.com" {
		t.Errorf("unexpected recipients %v", gotTo)
	}
	if !bytes.Contains(gotMsg, []byte("Subject: Rent reconciliation 2025-01\r\n")) {
		t.Errorf("expected subject header, got %q", gotMsg)
	}
}

func TestSMTPNotifierDeliveryFailure(t *testing.T) {
	cfg := &SMTPConfig{Host: "smtp.example.com", Port: 25, From: "a@example.com", To: []string{"b@example.com"}}
	n, err := NewSMTPNotifier(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("NewSMTPNotifier failed: %v", err)
	}
	n.send = func(string, smtp.Auth, string, []string, []byte) error {
		return fmt.Errorf("dial tcp: connection refused")
	}

	err = n.Notify(context.Background(), testMessage())
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Category != errors.CategoryNotification {
		t.Fatalf("expected a notification error, got %v", err)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.NewLoggerWithWriter(&logger.Config{
		Level:  logger.InfoLevel,
		Format: logger.JSONFormat,
		Output: logger.StdoutOutput,
	}, &buf)
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}

	if err := NewLogNotifier(log).Notify(context.Background(), testMessage()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected a summary line and one review line, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "1047 Millison Pl") {
		t.Errorf("expected the discrepancy to be logged, got %s", lines[1])
	}
}

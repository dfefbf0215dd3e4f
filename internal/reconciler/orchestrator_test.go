package reconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"rent-reconciliation-service/internal/extraction"
	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/notify"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// fakeStore keeps the latest results per month, like the SQLite store.
type fakeStore struct {
	params     []models.PropertyParameter
	months     map[string]*models.RunResults
	replaceErr error
	loadErr    error
	replaces   int
}

func newFakeStore(params ...models.PropertyParameter) *fakeStore {
	return &fakeStore{params: params, months: make(map[string]*models.RunResults)}
}

func (s *fakeStore) CurrentParameters(context.Context) ([]models.PropertyParameter, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.params, nil
}

func (s *fakeStore) ReplaceMonth(_ context.Context, res *models.RunResults) error {
	s.replaces++
	if s.replaceErr != nil {
		return s.replaceErr
	}
	s.months[res.Month.String()] = res
	return nil
}

type fakeNotifier struct {
	messages []*notify.Message
	err      error
}

func (n *fakeNotifier) Notify(_ context.Context, msg *notify.Message) error {
	n.messages = append(n.messages, msg)
	return n.err
}

var january = models.Month{Year: 2025, Month: time.January}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func parameter(manager, address, rent string) models.PropertyParameter {
	return models.PropertyParameter{
		PropertyManagementName: manager,
		Address:                address,
		ExpectedRent:           dec(rent),
		HOAFrequency:           models.HOAMonthly,
		EffectiveFrom:          time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
}

func statement(manager string, props ...models.ExtractedProperty) models.ExtractedStatement {
	return models.ExtractedStatement{
		SourceFile:             manager + ".pdf",
		StatementDate:          time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC),
		PropertyManagementName: manager,
		Properties:             props,
	}
}

func property(address, rentPaid string) models.ExtractedProperty {
	return models.ExtractedProperty{
		Address:    address,
		RentAmount: dec(rentPaid),
		RentPaid:   dec(rentPaid),
	}
}

func deposit(day int, merchant, description, amount string) models.BankTransaction {
	return models.BankTransaction{
		Date:        time.Date(2025, time.January, day, 0, 0, 0, 0, time.UTC),
		Merchant:    merchant,
		Description: description,
		Amount:      dec(amount),
	}
}

func newTestOrchestrator(t *testing.T, store Store, notifier notify.Notifier) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(store, nil, notifier, nil, logger.NewNop())
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	ids := 0
	o.newRunID = func() string {
		ids++
		return fmt.Sprintf("run-%d", ids)
	}
	return o
}

func endToEndRequest() *Request {
	return &Request{
		Month: january,
		Statements: []models.ExtractedStatement{
			statement("Sure Realty", property("2560 Coventry St", "1833.00")),
			statement("GOGO PROPERTY", property("1047 Millison Pl", "6751.50")),
		},
		Transactions: []models.BankTransaction{
			deposit(15, "Sure Realty", "ACH DEPOSIT", "1833.00"),
			deposit(16, "GOGO PROPERTY", "ACH DEPOSIT", "6751.50"),
		},
	}
}

func TestNewOrchestratorRequiresStore(t *testing.T) {
	if _, err := NewOrchestrator(nil, nil, nil, nil, logger.NewNop()); err == nil {
		t.Fatal("expected an error without a store")
	}
}

func TestRunEndToEnd(t *testing.T) {
	store := newFakeStore(
		parameter("Sure Realty", "2560 Coventry St", "1833.00"),
		parameter("GOGO PROPERTY", "1047 Millison Pl", "6751.50"),
	)
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, store, notifier)

	res, err := o.Run(context.Background(), endToEndRequest())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(res.ReconLogs) != 2 {
		t.Fatalf("expected 2 recon logs, got %d", len(res.ReconLogs))
	}
	for _, l := range res.ReconLogs {
		if l.Status != models.StatusMatched {
			t.Errorf("%s: expected MATCHED, got %s", l.Address, l.Status)
		}
		if !l.RentVariance.IsZero() || !l.HOAVariance.IsZero() || !l.MortgageVariance.IsZero() {
			t.Errorf("%s: expected zero variances, got %s/%s/%s",
				l.Address, l.RentVariance, l.HOAVariance, l.MortgageVariance)
		}
		if l.RunID != "run-1" || l.Month != january {
			t.Errorf("%s: unexpected run id %q or month %s", l.Address, l.RunID, l.Month)
		}
	}
	if len(res.MiscLogs) != 0 {
		t.Errorf("expected no misc expenses, got %+v", res.MiscLogs)
	}
	if len(res.Summaries) != 2 {
		t.Fatalf("expected 2 manager summaries, got %d", len(res.Summaries))
	}
	for _, s := range res.Summaries {
		if s.Status != models.StatusMatched || s.DepositCount != 1 {
			t.Errorf("%s: expected a single matched deposit, got %+v", s.PropertyManagementName, s)
		}
	}
	if len(res.Statements) != 2 {
		t.Errorf("expected 2 archived statement lines, got %d", len(res.Statements))
	}

	if store.months["2025-01"] == nil {
		t.Fatal("expected results to be persisted")
	}
	if len(notifier.messages) != 1 || len(notifier.messages[0].ReconLogs) != 2 {
		t.Errorf("expected one notification with both properties, got %+v", notifier.messages)
	}
}

func TestRunTwiceKeepsOnlySecondRun(t *testing.T) {
	store := newFakeStore(
		parameter("Sure Realty", "2560 Coventry St", "1833.00"),
		parameter("GOGO PROPERTY", "1047 Millison Pl", "6751.50"),
	)
	o := newTestOrchestrator(t, store, nil)

	if _, err := o.Run(context.Background(), endToEndRequest()); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	second := endToEndRequest()
	second.Statements[0].Properties[0].RentPaid = dec("1800.00")
	if _, err := o.Run(context.Background(), second); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	saved := store.months["2025-01"]
	if saved.RunID != "run-2" {
		t.Fatalf("expected the second run to be stored, got %s", saved.RunID)
	}
	if len(saved.ReconLogs) != 2 {
		t.Fatalf("expected one row per property, got %d", len(saved.ReconLogs))
	}
	for _, l := range saved.ReconLogs {
		if l.Address == "2560 Coventry St" && l.Status != models.StatusDiscrepancy {
			t.Errorf("expected the second run's discrepancy, got %s", l.Status)
		}
	}
}

func TestRunPersistenceFailure(t *testing.T) {
	store := newFakeStore(parameter("Sure Realty", "2560 Coventry St", "1833.00"))
	store.replaceErr = errors.PersistenceError(errors.CodeTransactionFailed, "replace month 2025-01", fmt.Errorf("disk full"))
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, store, notifier)

	_, err := o.Run(context.Background(), endToEndRequest())
	se, ok := err.(*StageError)
	if !ok {
		t.Fatalf("expected *StageError, got %T: %v", err, err)
	}
	if se.Stage != StagePersistence {
		t.Errorf("expected persistence stage, got %s", se.Stage)
	}
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.GetExitCode() != 6 {
		t.Errorf("expected the persistence error to unwrap, got %v", err)
	}
	if len(notifier.messages) != 0 {
		t.Error("expected no notification after a failed write")
	}
}

func TestRunNotificationFailureDoesNotFail(t *testing.T) {
	store := newFakeStore(parameter("Sure Realty", "2560 Coventry St", "1833.00"))
	notifier := &fakeNotifier{err: fmt.Errorf("smtp down")}
	o := newTestOrchestrator(t, store, notifier)

	res, err := o.Run(context.Background(), endToEndRequest())
	if err != nil {
		t.Fatalf("expected the run to succeed, got %v", err)
	}
	if res.NotificationErr == nil {
		t.Error("expected the notification error to be reported")
	}
	if store.months["2025-01"] == nil {
		t.Error("expected results to stay persisted")
	}
}

func TestRunSkipNotification(t *testing.T) {
	store := newFakeStore(parameter("Sure Realty", "2560 Coventry St", "1833.00"))
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(t, store, notifier)

	req := endToEndRequest()
	req.SkipNotification = true
	if _, err := o.Run(context.Background(), req); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(notifier.messages) != 0 {
		t.Error("expected notification to be skipped")
	}
}

func TestRunValidationFailures(t *testing.T) {
	renamed := map[string]interface{}{
		"statement_date": "01/31/2025",
		"merchant_group": "GOGO PROPERTY",
		"properties":     []interface{}{},
	}

	tests := []struct {
		name        string
		req         *Request
		wantPayload bool
	}{
		{
			name: "renamed field",
			req: &Request{
				Month:             january,
				RawStatements:     []map[string]interface{}{renamed},
				RawStatementNames: []string{"gogo.json"},
			},
			wantPayload: true,
		},
		{
			name: "empty properties",
			req: &Request{
				Month:      january,
				Statements: []models.ExtractedStatement{statement("Sure Realty")},
			},
		},
		{
			name: "no statements",
			req:  &Request{Month: january},
		},
		{
			name: "no month",
			req:  &Request{Statements: endToEndRequest().Statements},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(parameter("Sure Realty", "2560 Coventry St", "1833.00"))
			o := newTestOrchestrator(t, store, nil)

			_, err := o.Run(context.Background(), tt.req)
			se, ok := err.(*StageError)
			if !ok {
				t.Fatalf("expected *StageError, got %T: %v", err, err)
			}
			if se.Stage != StageValidation {
				t.Errorf("expected validation stage, got %s", se.Stage)
			}
			if tt.wantPayload && se.Payload == nil {
				t.Error("expected the raw payload to be attached")
			}
			if store.replaces != 0 {
				t.Error("expected nothing to be written")
			}
		})
	}
}

func TestRunDocumentsWithoutExtractor(t *testing.T) {
	o := newTestOrchestrator(t, newFakeStore(), nil)
	req := endToEndRequest()
	req.Statements = nil
	req.Documents = []extraction.Document{{Name: "gogo.txt", Text: "Owner statement"}}

	_, err := o.Run(context.Background(), req)
	se, ok := err.(*StageError)
	if !ok || se.Stage != StageExtraction {
		t.Fatalf("expected an extraction stage error, got %v", err)
	}
}

func TestRunWithoutParameters(t *testing.T) {
	o := newTestOrchestrator(t, newFakeStore(), nil)

	_, err := o.Run(context.Background(), endToEndRequest())
	se, ok := err.(*StageError)
	if !ok || se.Stage != StageMatching {
		t.Fatalf("expected a matching stage error, got %v", err)
	}
}

func TestRunParameterLoadFailure(t *testing.T) {
	store := newFakeStore()
	store.loadErr = fmt.Errorf("database is locked")
	o := newTestOrchestrator(t, store, nil)

	_, err := o.Run(context.Background(), endToEndRequest())
	se, ok := err.(*StageError)
	if !ok || se.Stage != StagePersistence {
		t.Fatalf("expected a persistence stage error, got %v", err)
	}
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := &Config{Path: filepath.Join(t.TempDir(), "recon.db"), BusyTimeout: time.Second}
	s, err := Open(context.Background(), cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func param(manager, address string, rent int64) models.PropertyParameter {
	return models.PropertyParameter{
		PropertyManagementName: manager,
		Address:                address,
		ExpectedRent:           decimal.NewFromInt(rent),
		MortgagePayment:        decimal.NewFromInt(900),
		HOAFee:                 decimal.NewFromInt(50),
		HOAFrequency:           models.HOAMonthly,
	}
}

func day(s string) time.Time {
	t, _ := time.Parse(models.DateFormat, s)
	return t
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recon.db")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), &Config{Path: path}, logger.NewNop())
		if err != nil {
			t.Fatalf("open %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestConfigValidate(t *testing.T) {
	if err := (&Config{}).Validate(); err == nil {
		t.Error("expected error for empty path")
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestReplaceParameters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := []models.PropertyParameter{
		param("Gogo Property", "2560 Coventry St", 1800),
		param("Gogo Property", "407 Elm Ave", 1500),
	}
	closed, err := s.ReplaceParameters(ctx, first, day("2025-01-01"))
	if err != nil {
		t.Fatalf("first upload failed: %v", err)
	}
	if closed != 0 {
		t.Errorf("expected 0 closed rows, got %d", closed)
	}

	second := []models.PropertyParameter{param("Gogo Property", "2560 Coventry St", 1850)}
	closed, err = s.ReplaceParameters(ctx, second, day("2025-02-01"))
	if err != nil {
		t.Fatalf("second upload failed: %v", err)
	}
	if closed != 2 {
		t.Errorf("expected 2 closed rows, got %d", closed)
	}

	current, err := s.CurrentParameters(ctx)
	if err != nil {
		t.Fatalf("CurrentParameters failed: %v", err)
	}
	if len(current) != 1 {
		t.Fatalf("expected 1 current parameter, got %d", len(current))
	}
	if !current[0].ExpectedRent.Equal(decimal.NewFromInt(1850)) {
		t.Errorf("expected rent 1850, got %s", current[0].ExpectedRent)
	}
	if !current[0].IsCurrent() {
		t.Error("expected current row to have no effective_to")
	}

	history, err := s.ParameterHistory(ctx, "2560 Coventry St")
	if err != nil {
		t.Fatalf("ParameterHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}
	if history[0].EffectiveTo == nil || !history[0].EffectiveTo.Equal(day("2025-02-01")) {
		t.Errorf("expected first version closed on 2025-02-01, got %v", history[0].EffectiveTo)
	}
	if !history[1].EffectiveFrom.Equal(day("2025-02-01")) {
		t.Errorf("expected second version effective from 2025-02-01, got %v", history[1].EffectiveFrom)
	}
}

func TestReplaceParametersRejectsDuplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.ReplaceParameters(ctx, []models.PropertyParameter{param("Gogo", "407 Elm Ave", 1500)}, day("2025-01-01")); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	dupes := []models.PropertyParameter{
		param("Gogo", "2560 Coventry St", 1800),
		param("Gogo", "2560 coventry st ", 1800),
	}
	_, err := s.ReplaceParameters(ctx, dupes, day("2025-02-01"))
	if err == nil {
		t.Fatal("expected duplicate address error")
	}
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Code != errors.CodeDuplicateAddress {
		t.Fatalf("expected duplicate address code, got %v", err)
	}

	current, err := s.CurrentParameters(ctx)
	if err != nil {
		t.Fatalf("CurrentParameters failed: %v", err)
	}
	if len(current) != 1 || current[0].Address != "407 Elm Ave" {
		t.Errorf("expected seeded parameters to remain current, got %+v", current)
	}
}

func sampleResults(month models.Month, runID string) *models.RunResults {
	return &models.RunResults{
		RunID: runID,
		Month: month,
		ReconLogs: []models.PropertyReconLog{{
			RunID:                  runID,
			Month:                  month,
			PropertyManagementName: "Gogo Property",
			Address:                "2560 Coventry St",
			TargetRent:             decimal.NewFromInt(1800),
			ActualRent:             decimal.NewFromInt(1800),
			RentVariance:           decimal.Zero,
			TargetHOA:              decimal.NewFromInt(50),
			ActualHOA:              decimal.NewFromInt(50),
			HOAVariance:            decimal.Zero,
			TargetMortgage:         decimal.NewFromInt(900),
			ActualMortgage:         decimal.NewFromInt(900),
			MortgageVariance:       decimal.Zero,
			BankDepositTotal:       decimal.RequireFromString("1620.50"),
			Status:                 models.StatusMatched,
		}},
		MiscLogs: []models.MiscExpenseLog{{
			RunID:              runID,
			Month:              month,
			DateCleared:        day("2025-01-15"),
			Description:        "Coffee",
			Amount:             decimal.RequireFromString("-4.50"),
			CategorySuggestion: "Starbucks",
		}},
		Summaries: []models.ManagerSummary{{
			RunID:                  runID,
			Month:                  month,
			PropertyManagementName: "Gogo Property",
			StatementTotal:         decimal.RequireFromString("1620.50"),
			BankTotal:              decimal.RequireFromString("1620.50"),
			Difference:             decimal.Zero,
			DepositCount:           1,
			Status:                 models.StatusMatched,
		}},
		Statements: []models.StatementRecord{{
			RunID:                  runID,
			Month:                  month,
			SourceFile:             "gogo.pdf",
			StatementDate:          day("2025-01-31"),
			PropertyManagementName: "Gogo Property",
			ExtractedProperty: models.ExtractedProperty{
				Address:        "2560 Coventry St",
				RentAmount:     decimal.NewFromInt(1800),
				RentPaid:       decimal.NewFromInt(1800),
				ManagementFees: decimal.RequireFromString("179.50"),
				NetIncome:      decimal.RequireFromString("1620.50"),
			},
		}},
	}
}

func TestReplaceMonthRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	month := models.Month{Year: 2025, Month: time.January}

	if err := s.ReplaceMonth(ctx, sampleResults(month, "run-1")); err != nil {
		t.Fatalf("ReplaceMonth failed: %v", err)
	}

	logs, err := s.ReconLogs(ctx, month)
	if err != nil {
		t.Fatalf("ReconLogs failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 recon log, got %d", len(logs))
	}
	if logs[0].Month != month {
		t.Errorf("expected month %s, got %s", month, logs[0].Month)
	}
	if !logs[0].BankDepositTotal.Equal(decimal.RequireFromString("1620.5")) {
		t.Errorf("expected deposit total 1620.50, got %s", logs[0].BankDepositTotal)
	}
	if logs[0].Status != models.StatusMatched {
		t.Errorf("expected MATCHED, got %s", logs[0].Status)
	}

	misc, err := s.MiscLogs(ctx, month)
	if err != nil {
		t.Fatalf("MiscLogs failed: %v", err)
	}
	if len(misc) != 1 || !misc[0].DateCleared.Equal(day("2025-01-15")) {
		t.Errorf("unexpected misc logs %+v", misc)
	}

	sums, err := s.ManagerSummaries(ctx, month)
	if err != nil {
		t.Fatalf("ManagerSummaries failed: %v", err)
	}
	if len(sums) != 1 || sums[0].DepositCount != 1 {
		t.Errorf("unexpected summaries %+v", sums)
	}

	stmts, err := s.Statements(ctx, month)
	if err != nil {
		t.Fatalf("Statements failed: %v", err)
	}
	if len(stmts) != 1 || stmts[0].SourceFile != "gogo.pdf" {
		t.Errorf("unexpected statements %+v", stmts)
	}
	if !stmts[0].NetIncome.Equal(decimal.RequireFromString("1620.50")) {
		t.Errorf("expected net income 1620.50, got %s", stmts[0].NetIncome)
	}
}

func TestReplaceMonthOverwritesPreviousRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	jan := models.Month{Year: 2025, Month: time.January}
	feb := models.Month{Year: 2025, Month: time.February}

	if err := s.ReplaceMonth(ctx, sampleResults(jan, "run-1")); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if err := s.ReplaceMonth(ctx, sampleResults(feb, "run-feb")); err != nil {
		t.Fatalf("february run failed: %v", err)
	}

	rerun := sampleResults(jan, "run-2")
	rerun.MiscLogs = nil
	if err := s.ReplaceMonth(ctx, rerun); err != nil {
		t.Fatalf("rerun failed: %v", err)
	}

	logs, err := s.ReconLogs(ctx, jan)
	if err != nil {
		t.Fatalf("ReconLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].RunID != "run-2" {
		t.Errorf("expected a single row from run-2, got %+v", logs)
	}

	misc, err := s.MiscLogs(ctx, jan)
	if err != nil {
		t.Fatalf("MiscLogs failed: %v", err)
	}
	if len(misc) != 0 {
		t.Errorf("expected misc rows of the first run to be removed, got %d", len(misc))
	}

	febLogs, err := s.ReconLogs(ctx, feb)
	if err != nil {
		t.Fatalf("ReconLogs failed: %v", err)
	}
	if len(febLogs) != 1 || febLogs[0].RunID != "run-feb" {
		t.Errorf("expected february to be untouched, got %+v", febLogs)
	}
}

func TestReplaceMonthRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	month := models.Month{Year: 2025, Month: time.January}

	if err := s.ReplaceMonth(ctx, sampleResults(month, "run-1")); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	bad := sampleResults(month, "run-2")
	bad.Summaries[0].Status = "BOGUS"
	err := s.ReplaceMonth(ctx, bad)
	if err == nil {
		t.Fatal("expected the check constraint to fail the transaction")
	}
	rerr, ok := errors.AsReconcilerError(err)
	if !ok || rerr.Category != errors.CategoryPersistence {
		t.Fatalf("expected a persistence error, got %v", err)
	}

	logs, err := s.ReconLogs(ctx, month)
	if err != nil {
		t.Fatalf("ReconLogs failed: %v", err)
	}
	if len(logs) != 1 || logs[0].RunID != "run-1" {
		t.Errorf("expected run-1 rows to survive the rollback, got %+v", logs)
	}
	misc, err := s.MiscLogs(ctx, month)
	if err != nil {
		t.Fatalf("MiscLogs failed: %v", err)
	}
	if len(misc) != 1 {
		t.Errorf("expected misc row to survive the rollback, got %d", len(misc))
	}
}

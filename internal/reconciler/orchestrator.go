// Package reconciler runs one month's rent reconciliation end to end.
//
// The Orchestrator sequences the stages of a run: statements are extracted
// and validated, the current property parameters are matched against the
// statements and the bank export by the Engine, the month's rows are replaced
// in the store in one transaction, and the notifier is told about the result.
// It performs no numeric computation itself.
//
// A failed run returns a *StageError naming the stage. Validation failures
// carry the raw extraction payload. Notification failures are logged and
// reported on the Result but never fail the run.
//
// Runs for the same month must not execute concurrently; callers serialize them.
package reconciler

import (
	"context"
	"fmt"
	"time"

	"rent-reconciliation-service/internal/extraction"
	"rent-reconciliation-service/internal/matcher"
	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/notify"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// Stage names a step of a run.
type Stage string

const (
	StageExtraction  Stage = "extraction"
	StageValidation  Stage = "validation"
	StageMatching    Stage = "matching"
	StagePersistence Stage = "persistence"
)

// StageError reports which stage of a run failed.
type StageError struct {
	Stage Stage
	Err   error
	// Payload is the upstream extraction output for validation failures.
	Payload interface{}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Store is the persistence the orchestrator needs.
type Store interface {
	CurrentParameters(ctx context.Context) ([]models.PropertyParameter, error)
	ReplaceMonth(ctx context.Context, res *models.RunResults) error
}

// StatementSource turns documents or raw extraction output into validated statements.
type StatementSource interface {
	ExtractAll(ctx context.Context, docs []extraction.Document) ([]models.ExtractedStatement, error)
	ValidateAll(raw []map[string]interface{}, names []string) ([]models.ExtractedStatement, error)
}

// Config configures an orchestrator.
type Config struct {
	Matching      *matcher.MatchingConfig
	Preprocessing *PreprocessingConfig
}

// DefaultConfig returns the default keywords and preprocessing.
func DefaultConfig() *Config {
	return &Config{
		Matching:      matcher.DefaultMatchingConfig(),
		Preprocessing: DefaultPreprocessingConfig(),
	}
}

// Validate checks the orchestrator configuration
func (c *Config) Validate() error {
	if c.Matching == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "matching", nil, nil)
	}
	if err := c.Matching.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "matching", c.Matching.String(), err)
	}
	return nil
}

// Request describes one reconciliation run. Statements may be given as
// documents to extract, as raw extraction output, or already validated; all
// given sources are combined in that order.
type Request struct {
	Month             models.Month
	Documents         []extraction.Document
	RawStatements     []map[string]interface{}
	RawStatementNames []string
	Statements        []models.ExtractedStatement
	// Transactions is the bank export for Month.
	Transactions     []models.BankTransaction
	SkipNotification bool
}

// Result is a completed run.
type Result struct {
	*models.RunResults
	NotificationErr error
	Duration        time.Duration
}

// Orchestrator runs reconciliations against injected collaborators.
type Orchestrator struct {
	store    Store
	source   StatementSource
	notifier notify.Notifier
	engine   *Engine
	prep     *PreprocessingConfig
	logger   logger.Logger
	newRunID func() string
}

// NewOrchestrator wires a run. source may be nil when requests only carry
// validated statements; notifier may be nil to disable notification.
func NewOrchestrator(store Store, source StatementSource, notifier notify.Notifier, config *Config, log logger.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "store", nil, nil).
			WithSuggestion("provide a store for the reconciliation results")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Preprocessing == nil {
		config.Preprocessing = DefaultPreprocessingConfig()
	}

	log = logger.OrGlobal(log).WithComponent("orchestrator")
	return &Orchestrator{
		store:    store,
		source:   source,
		notifier: notifier,
		engine:   NewEngine(config.Matching, log),
		prep:     config.Preprocessing,
		logger:   log,
		newRunID: uuid.NewString,
	}, nil
}

// Run executes every stage for req.Month. Persistence starts only after all
// statements are extracted and validated. Either the whole month is replaced
// or nothing is written.
func (o *Orchestrator) Run(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Month.IsZero() {
		return nil, &StageError{Stage: StageValidation,
			Err: errors.ValidationError(errors.CodeMissingField, "month", nil, nil)}
	}

	runID := o.newRunID()
	op := logger.NewOperationLogger("reconcile", o.logger).
		WithField("month", req.Month.String()).
		WithField("run_id", runID)

	fail := func(err error) (*Result, error) {
		op.Error(err, "Reconciliation failed")
		return nil, err
	}

	statements, err := o.collectStatements(ctx, req, op)
	if err != nil {
		return fail(err)
	}

	prep := NewDataPreprocessor(o.prep)
	statements = prep.PreprocessStatements(statements)
	txns := prep.PreprocessTransactions(req.Transactions)
	op.Step("preprocessed", logger.Fields{
		"transactions":        len(txns),
		"zero_amount_dropped": prep.GetStatistics().ZeroAmountDropped,
		"duplicates_removed":  prep.GetStatistics().DuplicatesRemoved,
	})

	params, err := o.store.CurrentParameters(ctx)
	if err != nil {
		return fail(&StageError{Stage: StagePersistence, Err: err})
	}
	if len(params) == 0 {
		return fail(&StageError{Stage: StageMatching, Err: errors.ReconciliationError(errors.CodeMatchingFailed,
			"load parameters", fmt.Errorf("no current property parameters")).
			WithSuggestion("upload property parameters with 'params load' first")})
	}

	results := o.engine.Reconcile(&Input{
		RunID:        runID,
		Month:        req.Month,
		Parameters:   params,
		Statements:   statements,
		Transactions: txns,
	})
	op.Step("matched", logger.Fields{
		"properties": len(results.ReconLogs),
		"misc":       len(results.MiscLogs),
		"managers":   len(results.Summaries),
	})

	if err := o.store.ReplaceMonth(ctx, results); err != nil {
		return fail(&StageError{Stage: StagePersistence, Err: err})
	}
	op.Step("persisted", nil)

	res := &Result{RunResults: results}
	if !req.SkipNotification {
		res.NotificationErr = o.notify(ctx, results)
		if res.NotificationErr != nil {
			op.Warning("Notification failed; results were saved", logger.Fields{"error": res.NotificationErr.Error()})
		}
	}

	res.Duration = op.Success("Reconciliation completed")
	return res, nil
}

func (o *Orchestrator) collectStatements(ctx context.Context, req *Request, op *logger.OperationLogger) ([]models.ExtractedStatement, error) {
	var statements []models.ExtractedStatement

	if len(req.Documents) > 0 {
		if o.source == nil {
			return nil, &StageError{Stage: StageExtraction,
				Err: errors.ConfigurationError(errors.CodeMissingConfig, "llm", nil, nil).
					WithSuggestion("configure an extractor to reconcile statement documents")}
		}
		extracted, err := o.source.ExtractAll(ctx, req.Documents)
		if err != nil {
			return nil, stageErrorFor(StageExtraction, err)
		}
		statements = append(statements, extracted...)
		op.Step("extracted", logger.Fields{"documents": len(req.Documents)})
	}

	if len(req.RawStatements) > 0 {
		source := o.source
		if source == nil {
			source = extraction.NewRunner(nil, nil, 1, o.logger)
		}
		validated, err := source.ValidateAll(req.RawStatements, req.RawStatementNames)
		if err != nil {
			return nil, stageErrorFor(StageValidation, err)
		}
		statements = append(statements, validated...)
	}

	for i := range req.Statements {
		if err := extraction.RequireProperties(&req.Statements[i]); err != nil {
			return nil, stageErrorFor(StageValidation, err)
		}
	}
	statements = append(statements, req.Statements...)

	if len(statements) == 0 {
		return nil, &StageError{Stage: StageValidation,
			Err: errors.ValidationError(errors.CodeMissingField, "statements", nil, nil).
				WithSuggestion("provide at least one rent statement")}
	}

	op.Step("validated", logger.Fields{"statements": len(statements)})
	return statements, nil
}

// notify hands the results to the notifier. Failures are returned for
// reporting only.
func (o *Orchestrator) notify(ctx context.Context, res *models.RunResults) error {
	if o.notifier == nil {
		return nil
	}
	err := o.notifier.Notify(ctx, &notify.Message{
		RunID:     res.RunID,
		Month:     res.Month,
		ReconLogs: res.ReconLogs,
		MiscLogs:  res.MiscLogs,
		Managers:  res.Summaries,
	})
	if err != nil {
		o.logger.WithError(err).WithField("run_id", res.RunID).Warn("Failed to deliver reconciliation summary")
	}
	return err
}

// stageErrorFor reports validation failures under the validation stage
// whatever step surfaced them, and attaches their payload.
func stageErrorFor(stage Stage, err error) *StageError {
	se := &StageError{Stage: stage, Err: err}
	if rerr, ok := errors.AsReconcilerError(err); ok {
		if rerr.Category == errors.CategoryValidation {
			se.Stage = StageValidation
		}
		se.Payload = rerr.Payload
	}
	return se
}

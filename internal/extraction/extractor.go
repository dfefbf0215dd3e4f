// Package extraction turns rent statements into validated ExtractedStatements.
//
// The language model sits behind the Extractor interface and returns an
// untyped JSON object per document; the Validator enforces the versioned
// statement schema on that object.
package extraction

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/sourcegraph/conc/pool"
)

// Document is one statement handed to the extractor, as text or PDF bytes.
type Document struct {
	Name string
	Text string
	PDF  []byte
}

// IsEmpty reports whether the document carries no content.
func (d Document) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == "" && len(d.PDF) == 0
}

// DocumentFromFile builds a document from file contents, treating .pdf files as binary.
func DocumentFromFile(path string, data []byte) Document {
	doc := Document{Name: filepath.Base(path)}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		doc.PDF = data
	} else {
		doc.Text = string(data)
	}
	return doc
}

// Extractor returns the raw JSON object the model produced for a document.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (map[string]interface{}, error)
}

// Runner extracts and validates documents, concurrently when there are several.
type Runner struct {
	extractor      Extractor
	validator      *Validator
	maxConcurrency int
	logger         logger.Logger
}

// NewRunner creates a runner. maxConcurrency below 1 means one at a time.
func NewRunner(extractor Extractor, validator *Validator, maxConcurrency int, log logger.Logger) *Runner {
	if validator == nil {
		validator = NewValidator(nil)
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Runner{
		extractor:      extractor,
		validator:      validator,
		maxConcurrency: maxConcurrency,
		logger:         logger.OrGlobal(log).WithComponent("extraction"),
	}
}

// ExtractAll returns one statement per document in input order. It returns
// only after every extraction has finished, and fails on the first error.
// Statements without properties are rejected.
func (r *Runner) ExtractAll(ctx context.Context, docs []Document) ([]models.ExtractedStatement, error) {
	if len(docs) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "documents", nil, nil).
			WithSuggestion("provide at least one rent statement")
	}

	statements := make([]models.ExtractedStatement, len(docs))
	var mu sync.Mutex
	done := 0

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError().WithMaxGoroutines(r.maxConcurrency)
	for i := range docs {
		doc := docs[i]
		p.Go(func(ctx context.Context) error {
			stmt, err := r.extractOne(ctx, doc)
			if err != nil {
				return err
			}
			statements[i] = *stmt

			mu.Lock()
			done++
			r.logger.WithFields(logger.Fields{
				"document":   doc.Name,
				"manager":    stmt.PropertyManagementName,
				"properties": len(stmt.Properties),
				"done":       done,
				"total":      len(docs),
			}).Info("Statement extracted")
			mu.Unlock()
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}
	return statements, nil
}

// ValidateAll validates already-extracted JSON objects without calling the model.
func (r *Runner) ValidateAll(raw []map[string]interface{}, names []string) ([]models.ExtractedStatement, error) {
	statements := make([]models.ExtractedStatement, 0, len(raw))
	for i, obj := range raw {
		stmt, err := r.validator.Validate(obj)
		if err != nil {
			return nil, err
		}
		if i < len(names) {
			stmt.SourceFile = names[i]
		}
		if err := RequireProperties(stmt); err != nil {
			return nil, err
		}
		statements = append(statements, *stmt)
	}
	return statements, nil
}

func (r *Runner) extractOne(ctx context.Context, doc Document) (*models.ExtractedStatement, error) {
	if doc.IsEmpty() {
		return nil, errors.ExtractionError(errors.CodeEmptyResponse, doc.Name, fmt.Errorf("document has no content"))
	}

	raw, err := r.extractor.Extract(ctx, doc)
	if err != nil {
		return nil, errors.WrapIfNeeded(err, errors.CategoryExtraction, errors.CodeExtractionFailed,
			fmt.Sprintf("extraction of %s failed", doc.Name))
	}

	stmt, err := r.validator.Validate(raw)
	if err != nil {
		if re, ok := errors.AsReconcilerError(err); ok {
			re.WithContext("document", doc.Name)
		}
		return nil, err
	}
	stmt.SourceFile = doc.Name

	if err := RequireProperties(stmt); err != nil {
		return nil, err
	}
	return stmt, nil
}

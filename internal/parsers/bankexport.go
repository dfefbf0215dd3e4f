package parsers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// BankExportParser reads a month of bank activity from CSV or JSON.
type BankExportParser struct {
	*BaseParser
	config *BankExportConfig
}

// NewBankExportParser creates a parser for the given export layout
func NewBankExportParser(config *BankExportConfig, log logger.Logger) (*BankExportParser, error) {
	if config == nil {
		config = DefaultBankExportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "bank_export", config.Name, err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = config.Delimiter

	return &BankExportParser{
		BaseParser: NewBaseParser(parseConfig, log),
		config:     config,
	}, nil
}

// ParseFile parses path as JSON when it has a .json extension and as CSV otherwise.
// Rows that fail to parse are reported together as an ErrorSummary.
func (p *BankExportParser) ParseFile(ctx context.Context, path string) ([]models.BankTransaction, *ParseStats, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil, errors.FileError(errors.CodeFileNotFound, path, err)
			}
			return nil, nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		defer f.Close()
		return p.ParseJSON(f, path)
	}

	file, reader, err := p.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	return p.parseCSV(ctx, reader, path)
}

// ParseCSV parses a CSV bank export read from r.
func (p *BankExportParser) ParseCSV(ctx context.Context, r io.Reader, source string) ([]models.BankTransaction, *ParseStats, error) {
	return p.parseCSV(ctx, p.NewReader(r), source)
}

func (p *BankExportParser) parseCSV(ctx context.Context, reader *csv.Reader, source string) ([]models.BankTransaction, *ParseStats, error) {
	parseCtx := NewParseContext(ctx, source)
	stats := &ParseStats{}

	required := map[string][]string{
		ColumnDate:   p.config.Aliases(ColumnDate),
		ColumnAmount: p.config.Aliases(ColumnAmount),
	}
	if err := p.ReadHeaders(reader, parseCtx, required); err != nil {
		return nil, stats, err
	}

	dedupe := newDuplicateTracker()
	var txns []models.BankTransaction

	for {
		record, err := p.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if parseErr, ok := err.(*ParseError); ok {
				stats.AddError(parseErr)
				continue
			}
			if parseCtx.IsCancelled() {
				return nil, stats, err
			}
			stats.AddError(&ParseError{Line: parseCtx.LineNumber + 1, Message: "failed to read record", Err: err})
			continue
		}
		stats.RecordsParsed++

		txn, parseErr := p.transactionFromFields(parseCtx.LineNumber, func(col string) string {
			return FieldValue(record, parseCtx, p.config.Aliases(col))
		})
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		p.trackDuplicate(dedupe, txn, parseCtx.LineNumber, source, stats)
		txns = append(txns, txn)
		stats.RecordsValid++
	}
	stats.TotalLines = parseCtx.LineNumber

	return txns, stats, p.finish(source, stats)
}

// ParseJSON parses an array of objects keyed like the CSV headers.
func (p *BankExportParser) ParseJSON(r io.Reader, source string) ([]models.BankTransaction, *ParseStats, error) {
	stats := &ParseStats{}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var rows []map[string]interface{}
	if err := dec.Decode(&rows); err != nil {
		return nil, stats, errors.ParseError(errors.CodeInvalidFormat, source, 0, "", "", err).
			WithSuggestion("the JSON export must be an array of objects")
	}

	dedupe := newDuplicateTracker()
	var txns []models.BankTransaction

	for i, row := range rows {
		line := i + 1
		stats.RecordsParsed++

		lowered := make(map[string]string, len(row))
		for k, v := range row {
			lowered[strings.ToLower(strings.TrimSpace(k))] = jsonString(v)
		}

		txn, parseErr := p.transactionFromFields(line, func(col string) string {
			for _, alias := range p.config.Aliases(col) {
				if v, ok := lowered[strings.ToLower(alias)]; ok {
					return strings.TrimSpace(v)
				}
			}
			return ""
		})
		if parseErr != nil {
			stats.AddError(parseErr)
			continue
		}

		p.trackDuplicate(dedupe, txn, line, source, stats)
		txns = append(txns, txn)
		stats.RecordsValid++
	}
	stats.TotalLines = len(rows)

	return txns, stats, p.finish(source, stats)
}

func (p *BankExportParser) transactionFromFields(line int, field func(col string) string) (models.BankTransaction, *ParseError) {
	dateStr := field(ColumnDate)
	date, err := models.ParseDate(dateStr)
	if err != nil {
		return models.BankTransaction{}, &ParseError{Line: line, Field: ColumnDate, Value: dateStr, Message: "invalid date", Err: err}
	}

	amountStr := field(ColumnAmount)
	amount, err := models.ParseDecimalFromString(amountStr)
	if err != nil {
		return models.BankTransaction{}, &ParseError{Line: line, Field: ColumnAmount, Value: amountStr, Message: "invalid amount", Err: err}
	}

	return models.BankTransaction{
		Date:        date,
		Merchant:    field(ColumnMerchant),
		Description: field(ColumnDescription),
		Amount:      amount,
	}, nil
}

func (p *BankExportParser) trackDuplicate(d *duplicateTracker, txn models.BankTransaction, line int, source string, stats *ParseStats) {
	first, dup := d.seen(txn, line)
	if !dup {
		return
	}
	stats.Duplicates++
	if p.config.WarnDuplicates {
		p.logger.WithFields(logger.Fields{
			"source":     source,
			"line":       line,
			"first_line": first,
			"merchant":   txn.Merchant,
			"amount":     txn.Amount.StringFixed(2),
		}).Warn("Duplicate bank row")
	}
}

// finish logs the outcome and turns row errors into a single error.
func (p *BankExportParser) finish(source string, stats *ParseStats) error {
	p.logger.WithFields(logger.Fields{
		"source":     source,
		"records":    stats.RecordsValid,
		"errors":     len(stats.Errors),
		"duplicates": stats.Duplicates,
	}).Info("Parsed bank export")

	if !stats.HasErrors() {
		return nil
	}
	return RowErrors(source, stats)
}

// RowErrors converts the row errors of stats into an ErrorSummary.
func RowErrors(source string, stats *ParseStats) *errors.ErrorSummary {
	errs := make([]*errors.ReconcilerError, 0, len(stats.Errors))
	for _, e := range stats.Errors {
		errs = append(errs, errors.ParseError(errors.CodeInvalidData, source, e.Line, e.Field, e.Value, e))
	}
	return errors.NewErrorSummary(errs)
}

// FilterMonth keeps the transactions dated within month, in input order, and
// reports how many were dropped.
func FilterMonth(txns []models.BankTransaction, month models.Month) ([]models.BankTransaction, int) {
	out := make([]models.BankTransaction, 0, len(txns))
	for _, t := range txns {
		if month.Contains(t.Date) {
			out = append(out, t)
		}
	}
	return out, len(txns) - len(out)
}

type duplicateTracker struct {
	first map[string]int
}

func newDuplicateTracker() *duplicateTracker {
	return &duplicateTracker{first: make(map[string]int)}
}

func (d *duplicateTracker) seen(txn models.BankTransaction, line int) (int, bool) {
	key := fmt.Sprintf("%s|%s|%s|%s", txn.Date.Format(models.DateFormat),
		strings.ToLower(txn.Merchant), strings.ToLower(txn.Description), txn.Amount.String())
	if first, ok := d.first[key]; ok {
		return first, true
	}
	d.first[key] = line
	return 0, false
}

func jsonString(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return decimal.NewFromFloat(x).String()
	case bool:
		return fmt.Sprintf("%t", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

package parsers

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// ParameterParser reads a property parameter upload.
type ParameterParser struct {
	*BaseParser
	config *ParameterConfig
}

// NewParameterParser creates a parser for parameter uploads
func NewParameterParser(config *ParameterConfig, log logger.Logger) (*ParameterParser, error) {
	if config == nil {
		config = DefaultParameterConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parameters", "", err)
	}

	parseConfig := DefaultParseConfig()
	parseConfig.Delimiter = config.Delimiter

	return &ParameterParser{
		BaseParser: NewBaseParser(parseConfig, log),
		config:     config,
	}, nil
}

// ParseFile parses the parameter CSV at path. Every bad row is collected and
// the upload is rejected as a whole when any row fails.
func (p *ParameterParser) ParseFile(ctx context.Context, path string) ([]models.PropertyParameter, error) {
	file, reader, err := p.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return p.parse(ctx, reader, path)
}

// Parse parses a parameter CSV read from r.
func (p *ParameterParser) Parse(ctx context.Context, r io.Reader, source string) ([]models.PropertyParameter, error) {
	return p.parse(ctx, p.NewReader(r), source)
}

func (p *ParameterParser) parse(ctx context.Context, reader *csv.Reader, source string) ([]models.PropertyParameter, error) {
	parseCtx := NewParseContext(ctx, source)

	required := map[string][]string{
		ColumnManager: p.config.Aliases(ColumnManager),
		ColumnAddress: p.config.Aliases(ColumnAddress),
	}
	if err := p.ReadHeaders(reader, parseCtx, required); err != nil {
		return nil, err
	}

	var (
		params []models.PropertyParameter
		rowErr []*errors.ReconcilerError
		seen   = make(map[string]int)
	)

	for {
		record, err := p.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if parseCtx.IsCancelled() {
				return nil, err
			}
			rowErr = append(rowErr, errors.ParseError(errors.CodeInvalidData, source, parseCtx.LineNumber, "", "", err))
			continue
		}

		field := func(col string) string {
			return FieldValue(record, parseCtx, p.config.Aliases(col))
		}

		param, errs := p.parameterFromRecord(parseCtx.LineNumber, source, field)
		if len(errs) > 0 {
			rowErr = append(rowErr, errs...)
			continue
		}

		key := normalizeAddress(param.Address)
		if first, ok := seen[key]; ok {
			rowErr = append(rowErr, errors.ValidationError(errors.CodeDuplicateAddress, ColumnAddress, param.Address, nil).
				WithContext("line", parseCtx.LineNumber).
				WithContext("first_line", first))
			continue
		}
		seen[key] = parseCtx.LineNumber
		params = append(params, param)
	}

	if len(rowErr) > 0 {
		summary := errors.NewErrorSummary(rowErr)
		p.logger.WithFields(logger.Fields{
			"source": source,
			"errors": summary.Total,
		}).Error("Rejected parameter upload")
		return nil, summary
	}

	p.logger.WithFields(logger.Fields{
		"source":     source,
		"properties": len(params),
	}).Info("Parsed property parameters")
	return params, nil
}

func (p *ParameterParser) parameterFromRecord(line int, source string, field func(string) string) (models.PropertyParameter, []*errors.ReconcilerError) {
	var errs []*errors.ReconcilerError

	param := models.PropertyParameter{
		PropertyManagementName: field(ColumnManager),
		Address:                field(ColumnAddress),
	}
	if param.PropertyManagementName == "" {
		errs = append(errs, errors.ParseError(errors.CodeMissingColumn, source, line, ColumnManager, "", nil))
	}
	if param.Address == "" {
		errs = append(errs, errors.ParseError(errors.CodeMissingColumn, source, line, ColumnAddress, "", nil))
	}

	amounts := []struct {
		column string
		dest   *decimal.Decimal
	}{
		{ColumnExpectedRent, &param.ExpectedRent},
		{ColumnManagementFee, &param.ManagementFee},
		{ColumnMortgagePayment, &param.MortgagePayment},
		{ColumnHOAFee, &param.HOAFee},
	}
	for _, a := range amounts {
		raw := field(a.column)
		if raw == "" {
			*a.dest = decimal.Zero
			continue
		}
		v, err := models.ParseDecimalFromString(raw)
		if err != nil {
			errs = append(errs, errors.ParseError(errors.CodeInvalidData, source, line, a.column, raw, err))
			continue
		}
		if v.IsNegative() {
			errs = append(errs, errors.ParseError(errors.CodeInvalidData, source, line, a.column, raw,
				errors.New(errors.CategoryValidation, errors.CodeInvalidAmount, "amount cannot be negative")))
			continue
		}
		*a.dest = v
	}

	raw := field(ColumnHOAFrequency)
	freq, err := models.ParseHOAFrequency(raw)
	if err != nil {
		errs = append(errs, errors.ParseError(errors.CodeInvalidData, source, line, ColumnHOAFrequency, raw, err))
	}
	param.HOAFrequency = freq

	return param, errs
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

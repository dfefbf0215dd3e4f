package extraction

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
)

// SchemaVersion identifies the field set the validator accepts.
const SchemaVersion = "v2"

// Statement-level keys of the current schema.
const (
	FieldStatementDate = "statement_date"
	FieldManager       = "property_management_name"
	FieldProperties    = "properties"
)

// Property-level keys of the current schema.
const (
	FieldAddress        = "address"
	FieldRentAmount     = "rent_amount"
	FieldRentPaid       = "rent_paid"
	FieldManagementFees = "management_fees"
	FieldNetIncome      = "net_income"
)

var statementFields = map[string]bool{
	FieldStatementDate: true,
	FieldManager:       true,
	FieldProperties:    true,
}

var propertyFields = map[string]bool{
	FieldAddress:        true,
	FieldRentAmount:     true,
	FieldRentPaid:       true,
	FieldManagementFees: true,
	FieldNetIncome:      true,
}

// Keys used by earlier prompt versions, mapped to their current name.
var renamedStatementFields = map[string]string{
	"merchant_group":      FieldManager,
	"property_management": FieldManager,
	"manager":             FieldManager,
	"manager_name":        FieldManager,
	"date":                FieldStatementDate,
	"net_total":           FieldProperties + "[]." + FieldNetIncome,
}

var renamedPropertyFields = map[string]string{
	"name":             FieldAddress,
	"property_address": FieldAddress,
	"rent":             FieldRentAmount,
	"fee":              FieldManagementFees,
	"fees":             FieldManagementFees,
	"management_fee":   FieldManagementFees,
	"net":              FieldNetIncome,
}

// ValidatorConfig controls how strictly extraction output is checked.
type ValidatorConfig struct {
	// Strict rejects keys that are not part of the schema. Renamed keys are
	// always rejected.
	Strict bool `json:"strict" mapstructure:"strict"`
}

// DefaultValidatorConfig returns the strict configuration.
func DefaultValidatorConfig() *ValidatorConfig {
	return &ValidatorConfig{Strict: true}
}

// Validator turns untyped extraction output into an ExtractedStatement.
type Validator struct {
	config *ValidatorConfig
}

// NewValidator creates a validator; a nil config is strict.
func NewValidator(config *ValidatorConfig) *Validator {
	if config == nil {
		config = DefaultValidatorConfig()
	}
	return &Validator{config: config}
}

// Validate builds a statement from raw. Every error is a validation
// ReconcilerError naming the field (and record, for properties) and carrying
// raw as its payload. An empty property list is not an error here; see
// RequireProperties.
func (v *Validator) Validate(raw map[string]interface{}) (*models.ExtractedStatement, error) {
	stmt, err := v.validate(raw)
	if err != nil {
		if re, ok := errors.AsReconcilerError(err); ok {
			return nil, re.WithPayload(raw)
		}
		return nil, err
	}
	return stmt, nil
}

func (v *Validator) validate(raw map[string]interface{}) (*models.ExtractedStatement, error) {
	if raw == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, FieldStatementDate, nil, nil)
	}
	if err := v.checkKeys(raw, -1, statementFields, renamedStatementFields); err != nil {
		return nil, err
	}

	stmt := &models.ExtractedStatement{}

	dateStr, err := requiredString(raw, FieldStatementDate)
	if err != nil {
		return nil, err
	}
	date, err := models.ParseDate(dateStr)
	if err != nil {
		return nil, errors.ValidationError(errors.CodeInvalidDate, FieldStatementDate, dateStr, err)
	}
	stmt.StatementDate = date

	if stmt.PropertyManagementName, err = requiredString(raw, FieldManager); err != nil {
		return nil, err
	}

	list, err := propertyList(raw)
	if err != nil {
		return nil, err
	}

	stmt.Properties = make([]models.ExtractedProperty, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, errors.RecordValidationError(errors.CodeInvalidType, i, FieldProperties, item, nil)
		}
		p, err := v.property(i, obj)
		if err != nil {
			return nil, err
		}
		stmt.Properties = append(stmt.Properties, p)
	}

	return stmt, nil
}

func (v *Validator) property(record int, obj map[string]interface{}) (models.ExtractedProperty, error) {
	var p models.ExtractedProperty

	if err := v.checkKeys(obj, record, propertyFields, renamedPropertyFields); err != nil {
		return p, err
	}

	p.Address = models.UnknownAddress
	switch addr := obj[FieldAddress].(type) {
	case nil:
	case string:
		if s := strings.TrimSpace(addr); s != "" {
			p.Address = s
		}
	default:
		return p, errors.RecordValidationError(errors.CodeInvalidType, record, FieldAddress, addr, nil)
	}

	numeric := []struct {
		field string
		dst   *decimal.Decimal
	}{
		{FieldRentAmount, &p.RentAmount},
		{FieldRentPaid, &p.RentPaid},
		{FieldManagementFees, &p.ManagementFees},
		{FieldNetIncome, &p.NetIncome},
	}
	for _, n := range numeric {
		d, err := toDecimal(obj[n.field])
		if err != nil {
			return p, errors.RecordValidationError(errors.CodeInvalidAmount, record, n.field, obj[n.field], err)
		}
		*n.dst = d
	}

	if p.RentAmount.IsNegative() {
		return p, errors.RecordValidationError(errors.CodeInvalidValue, record, FieldRentAmount, p.RentAmount.String(), nil)
	}
	return p, nil
}

func (v *Validator) checkKeys(obj map[string]interface{}, record int, known map[string]bool, renamed map[string]string) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if known[k] {
			continue
		}
		if current, ok := renamed[k]; ok {
			return fieldError(errors.CodeRenamedField, record, k, current)
		}
		if v.config.Strict {
			return fieldError(errors.CodeUnknownField, record, k, obj[k])
		}
	}
	return nil
}

// RequireProperties fails when a statement has no properties. An empty list
// means the extraction most likely failed and the run must not continue.
func RequireProperties(stmt *models.ExtractedStatement) error {
	if len(stmt.Properties) > 0 {
		return nil
	}
	name := stmt.SourceFile
	if name == "" {
		name = stmt.PropertyManagementName
	}
	return errors.ValidationError(errors.CodeEmptyProperties, FieldProperties, name, nil)
}

func fieldError(code errors.ErrorCode, record int, field string, value interface{}) error {
	if record < 0 {
		return errors.ValidationError(code, field, value, nil)
	}
	return errors.RecordValidationError(code, record, field, value, nil)
}

func requiredString(raw map[string]interface{}, field string) (string, error) {
	val, ok := raw[field]
	if !ok || val == nil {
		return "", errors.ValidationError(errors.CodeMissingField, field, nil, nil)
	}
	s, ok := val.(string)
	if !ok {
		return "", errors.ValidationError(errors.CodeInvalidType, field, val, nil)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.ValidationError(errors.CodeMissingField, field, val, nil)
	}
	return s, nil
}

func propertyList(raw map[string]interface{}) ([]interface{}, error) {
	val, ok := raw[FieldProperties]
	if !ok || val == nil {
		return nil, nil
	}
	list, ok := val.([]interface{})
	if !ok {
		return nil, errors.ValidationError(errors.CodeInvalidType, FieldProperties, val, nil)
	}
	return list, nil
}

// toDecimal coerces a JSON value into a decimal. Absent values are zero.
func toDecimal(v interface{}) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case float32:
		return decimal.NewFromFloat32(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		if strings.TrimSpace(n) == "" {
			return decimal.Zero, nil
		}
		return models.ParseDecimalFromString(n)
	default:
		return decimal.Zero, fmt.Errorf("cannot use %T as a number", v)
	}
}

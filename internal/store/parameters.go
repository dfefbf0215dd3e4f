package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"
)

const parameterColumns = `id, property_management_name, address, expected_rent, management_fee,
	mortgage_payment, hoa_fee, hoa_frequency, effective_from, effective_to`

// CurrentParameters returns the open version of every property, ordered by address.
func (s *Store) CurrentParameters(ctx context.Context) ([]models.PropertyParameter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+parameterColumns+`
		FROM property_parameters WHERE effective_to IS NULL ORDER BY address`)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "load current parameters", err)
	}
	defer rows.Close()
	return scanParameters(rows)
}

// ParameterHistory returns every version of one address, oldest first.
func (s *Store) ParameterHistory(ctx context.Context, address string) ([]models.PropertyParameter, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+parameterColumns+`
		FROM property_parameters WHERE address = ? ORDER BY effective_from, id`, strings.TrimSpace(address))
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "load parameter history", err)
	}
	defer rows.Close()
	return scanParameters(rows)
}

// ReplaceParameters closes every open parameter row as of today and inserts
// params as the new current set. It returns how many rows were closed.
func (s *Store) ReplaceParameters(ctx context.Context, params []models.PropertyParameter, today time.Time) (int, error) {
	if err := checkParameters(params); err != nil {
		return 0, err
	}
	day := formatDate(today)

	var closed int
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE property_parameters SET effective_to = ? WHERE effective_to IS NULL`, day)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		closed = int(n)

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO property_parameters (
			property_management_name, address, expected_rent, management_fee,
			mortgage_payment, hoa_fee, hoa_frequency, effective_from
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range params {
			freq := p.HOAFrequency
			if freq == "" {
				freq = models.HOAMonthly
			}
			if _, err := stmt.ExecContext(ctx,
				strings.TrimSpace(p.PropertyManagementName),
				strings.TrimSpace(p.Address),
				dec(p.ExpectedRent),
				dec(p.ManagementFee),
				dec(p.MortgagePayment),
				dec(p.HOAFee),
				string(freq),
				day,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.PersistenceError(errors.CodeTransactionFailed, "replace parameters", err)
	}

	s.logger.WithFields(logger.Fields{
		"inserted": len(params),
		"closed":   closed,
	}).Info("Replaced property parameters")
	return closed, nil
}

// checkParameters validates every row and rejects duplicate addresses before
// anything is written.
func checkParameters(params []models.PropertyParameter) error {
	seen := make(map[string]int, len(params))
	for i := range params {
		p := &params[i]
		if err := p.Validate(); err != nil {
			return errors.RecordValidationError(errors.CodeInvalidValue, i+1, "parameters", p.Address, err)
		}
		key := strings.ToLower(strings.TrimSpace(p.Address))
		if first, ok := seen[key]; ok {
			return errors.RecordValidationError(errors.CodeDuplicateAddress, i+1, "address", p.Address, nil).
				WithContext("first_record", first)
		}
		seen[key] = i + 1
	}
	return nil
}

func scanParameters(rows *sql.Rows) ([]models.PropertyParameter, error) {
	var out []models.PropertyParameter
	for rows.Next() {
		var (
			p    models.PropertyParameter
			freq string
			from string
			to   sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.PropertyManagementName, &p.Address, &p.ExpectedRent,
			&p.ManagementFee, &p.MortgagePayment, &p.HOAFee, &freq, &from, &to); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan parameter", err)
		}
		p.HOAFrequency = models.HOAFrequency(freq)

		var err error
		if p.EffectiveFrom, err = parseDate(from); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan parameter", err)
		}
		if to.Valid {
			t, err := parseDate(to.String)
			if err != nil {
				return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan parameter", err)
			}
			p.EffectiveTo = &t
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "iterate parameters", err)
	}
	return out, nil
}

package store

import (
	"context"
	"database/sql"

	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/pkg/errors"
	"rent-reconciliation-service/pkg/logger"
)

var monthTables = []string{
	"property_recon_log",
	"misc_expense_log",
	"reconciliation_summary",
	"rental_statements",
}

// ReplaceMonth deletes every row previously written for res.Month and inserts
// res in a single transaction. On failure nothing changes.
func (s *Store) ReplaceMonth(ctx context.Context, res *models.RunResults) error {
	from, to := monthBounds(res.Month)
	op := "replace month " + res.Month.String()

	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, table := range monthTables {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM `+table+` WHERE month_year >= ? AND month_year < ?`, from, to); err != nil {
				return err
			}
		}
		if err := insertReconLogs(ctx, tx, res); err != nil {
			return err
		}
		if err := insertMiscLogs(ctx, tx, res); err != nil {
			return err
		}
		if err := insertSummaries(ctx, tx, res); err != nil {
			return err
		}
		return insertStatements(ctx, tx, res)
	})
	if err != nil {
		return errors.PersistenceError(errors.CodeTransactionFailed, op, err).
			WithContext("run_id", res.RunID)
	}

	s.logger.WithFields(logger.Fields{
		"month":      res.Month.String(),
		"run_id":     res.RunID,
		"properties": len(res.ReconLogs),
		"misc":       len(res.MiscLogs),
		"managers":   len(res.Summaries),
		"statements": len(res.Statements),
	}).Info("Saved reconciliation results")
	return nil
}

func insertReconLogs(ctx context.Context, tx *sql.Tx, res *models.RunResults) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO property_recon_log (
		run_id, month_year, property_management_name, address,
		target_rent, actual_rent, rent_variance,
		target_hoa, actual_hoa, hoa_variance,
		target_mortgage, actual_mortgage, mortgage_variance,
		bank_deposit_total, status
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	month := formatDate(res.Month.Start())
	for _, l := range res.ReconLogs {
		if _, err := stmt.ExecContext(ctx,
			res.RunID, month, l.PropertyManagementName, l.Address,
			dec(l.TargetRent), dec(l.ActualRent), dec(l.RentVariance),
			dec(l.TargetHOA), dec(l.ActualHOA), dec(l.HOAVariance),
			dec(l.TargetMortgage), dec(l.ActualMortgage), dec(l.MortgageVariance),
			dec(l.BankDepositTotal), string(l.Status),
		); err != nil {
			return err
		}
	}
	return nil
}

func insertMiscLogs(ctx context.Context, tx *sql.Tx, res *models.RunResults) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO misc_expense_log (
		run_id, month_year, date_cleared, description, amount, category_suggestion
	) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	month := formatDate(res.Month.Start())
	for _, l := range res.MiscLogs {
		if _, err := stmt.ExecContext(ctx,
			res.RunID, month, formatDate(l.DateCleared), l.Description, dec(l.Amount), l.CategorySuggestion,
		); err != nil {
			return err
		}
	}
	return nil
}

func insertSummaries(ctx context.Context, tx *sql.Tx, res *models.RunResults) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO reconciliation_summary (
		run_id, month_year, property_management_name, statement_total, bank_total,
		difference, deposit_count, status, suggested_merchant
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	month := formatDate(res.Month.Start())
	for _, sum := range res.Summaries {
		if _, err := stmt.ExecContext(ctx,
			res.RunID, month, sum.PropertyManagementName, dec(sum.StatementTotal), dec(sum.BankTotal),
			dec(sum.Difference), sum.DepositCount, string(sum.Status), sum.SuggestedMerchant,
		); err != nil {
			return err
		}
	}
	return nil
}

func insertStatements(ctx context.Context, tx *sql.Tx, res *models.RunResults) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rental_statements (
		run_id, month_year, source_file, statement_date, property_management_name,
		address, rent_amount, rent_paid, management_fees, net_income
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	month := formatDate(res.Month.Start())
	for _, r := range res.Statements {
		if _, err := stmt.ExecContext(ctx,
			res.RunID, month, r.SourceFile, formatDate(r.StatementDate), r.PropertyManagementName,
			r.Address, dec(r.RentAmount), dec(r.RentPaid), dec(r.ManagementFees), dec(r.NetIncome),
		); err != nil {
			return err
		}
	}
	return nil
}

// ReconLogs returns the property rows stored for month, ordered by manager and address.
func (s *Store) ReconLogs(ctx context.Context, month models.Month) ([]models.PropertyReconLog, error) {
	from, to := monthBounds(month)
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, month_year, property_management_name, address,
			target_rent, actual_rent, rent_variance,
			target_hoa, actual_hoa, hoa_variance,
			target_mortgage, actual_mortgage, mortgage_variance,
			bank_deposit_total, status
		FROM property_recon_log
		WHERE month_year >= ? AND month_year < ?
		ORDER BY property_management_name, address`, from, to)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "load recon logs", err)
	}
	defer rows.Close()

	var out []models.PropertyReconLog
	for rows.Next() {
		var (
			l      models.PropertyReconLog
			m      string
			status string
		)
		if err := rows.Scan(&l.ID, &l.RunID, &m, &l.PropertyManagementName, &l.Address,
			&l.TargetRent, &l.ActualRent, &l.RentVariance,
			&l.TargetHOA, &l.ActualHOA, &l.HOAVariance,
			&l.TargetMortgage, &l.ActualMortgage, &l.MortgageVariance,
			&l.BankDepositTotal, &status); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan recon log", err)
		}
		if l.Month, err = parseMonth(m); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan recon log", err)
		}
		l.Status = models.Status(status)
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "iterate recon logs", err)
	}
	return out, nil
}

// MiscLogs returns the unattributed transactions stored for month, by date.
func (s *Store) MiscLogs(ctx context.Context, month models.Month) ([]models.MiscExpenseLog, error) {
	from, to := monthBounds(month)
	rows, err := s.db.QueryContext(ctx, `SELECT id, run_id, month_year, date_cleared, description,
			amount, category_suggestion
		FROM misc_expense_log
		WHERE month_year >= ? AND month_year < ?
		ORDER BY date_cleared, id`, from, to)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "load misc logs", err)
	}
	defer rows.Close()

	var out []models.MiscExpenseLog
	for rows.Next() {
		var (
			l       models.MiscExpenseLog
			m       string
			cleared string
		)
		if err := rows.Scan(&l.ID, &l.RunID, &m, &cleared, &l.Description,
			&l.Amount, &l.CategorySuggestion); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan misc log", err)
		}
		if l.Month, err = parseMonth(m); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan misc log", err)
		}
		if l.DateCleared, err = parseDate(cleared); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan misc log", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "iterate misc logs", err)
	}
	return out, nil
}

// ManagerSummaries returns the statement-versus-bank rows stored for month.
func (s *Store) ManagerSummaries(ctx context.Context, month models.Month) ([]models.ManagerSummary, error) {
	from, to := monthBounds(month)
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, month_year, property_management_name,
			statement_total, bank_total, difference, deposit_count, status, suggested_merchant
		FROM reconciliation_summary
		WHERE month_year >= ? AND month_year < ?
		ORDER BY property_management_name`, from, to)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "load manager summaries", err)
	}
	defer rows.Close()

	var out []models.ManagerSummary
	for rows.Next() {
		var (
			sum    models.ManagerSummary
			m      string
			status string
		)
		if err := rows.Scan(&sum.RunID, &m, &sum.PropertyManagementName, &sum.StatementTotal,
			&sum.BankTotal, &sum.Difference, &sum.DepositCount, &status, &sum.SuggestedMerchant); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan manager summary", err)
		}
		if sum.Month, err = parseMonth(m); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan manager summary", err)
		}
		sum.Status = models.Status(status)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "iterate manager summaries", err)
	}
	return out, nil
}

// Statements returns the archived statement lines for month.
func (s *Store) Statements(ctx context.Context, month models.Month) ([]models.StatementRecord, error) {
	from, to := monthBounds(month)
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, month_year, source_file, statement_date,
			property_management_name, address, rent_amount, rent_paid, management_fees, net_income
		FROM rental_statements
		WHERE month_year >= ? AND month_year < ?
		ORDER BY property_management_name, id`, from, to)
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "load statements", err)
	}
	defer rows.Close()

	var out []models.StatementRecord
	for rows.Next() {
		var (
			r      models.StatementRecord
			m      string
			issued string
		)
		if err := rows.Scan(&r.RunID, &m, &r.SourceFile, &issued, &r.PropertyManagementName,
			&r.Address, &r.RentAmount, &r.RentPaid, &r.ManagementFees, &r.NetIncome); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan statement", err)
		}
		if r.Month, err = parseMonth(m); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan statement", err)
		}
		if r.StatementDate, err = parseDate(issued); err != nil {
			return nil, errors.PersistenceError(errors.CodeQueryFailed, "scan statement", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.PersistenceError(errors.CodeQueryFailed, "iterate statements", err)
	}
	return out, nil
}

package reconciler

import (
	"sort"
	"strings"

	"rent-reconciliation-service/internal/classifier"
	"rent-reconciliation-service/internal/matcher"
	"rent-reconciliation-service/internal/models"
	"rent-reconciliation-service/internal/variance"
	"rent-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Input is everything one month's reconciliation is computed from.
type Input struct {
	RunID        string
	Month        models.Month
	Parameters   []models.PropertyParameter
	Statements   []models.ExtractedStatement
	Transactions []models.BankTransaction
}

// Engine turns an Input into the rows a run persists. It does no I/O.
type Engine struct {
	matcher *matcher.Matcher
	logger  logger.Logger
}

// NewEngine creates an engine; a nil config uses the default keywords.
func NewEngine(config *matcher.MatchingConfig, log logger.Logger) *Engine {
	return &Engine{
		matcher: matcher.NewMatcher(config),
		logger:  logger.OrGlobal(log).WithComponent("engine"),
	}
}

// Reconcile produces one recon log per current parameter, the misc expenses,
// one summary per statement manager and the statement archive rows.
func (e *Engine) Reconcile(in *Input) *models.RunResults {
	txIdx := matcher.NewTransactionIndex(in.Transactions)
	stmtIdx := matcher.NewStatementIndex(in.Statements)

	current := currentParameters(in.Parameters)

	res := &models.RunResults{
		RunID:      in.RunID,
		Month:      in.Month,
		ReconLogs:  make([]models.PropertyReconLog, 0, len(current)),
		Statements: statementRecords(in),
	}

	deposits := make(map[string]decimal.Decimal)
	knownHouseNumbers := make(map[string]bool, len(current))
	for i := range current {
		p := &current[i]

		token, ok := matcher.HouseNumber(p.Address)
		if ok {
			knownHouseNumbers[token] = true
		} else {
			e.logger.WithField("address", p.Address).Warn("Property address has no house number; it cannot match")
		}

		managerKey := foldName(p.PropertyManagementName)
		total, seen := deposits[managerKey]
		if !seen {
			total, _ = matcher.SumManagerDeposits(in.Transactions, p.PropertyManagementName)
			deposits[managerKey] = total
		}

		res.ReconLogs = append(res.ReconLogs, e.reconcileProperty(in, p, token, txIdx, stmtIdx, total))
	}

	e.warnUnknownProperties(in.Statements, stmtIdx, knownHouseNumbers)

	misc := classifier.ForRun(current, in.Statements, e.matcher.Config()).Classify(in.Transactions)
	for i := range misc {
		misc[i].RunID = in.RunID
		misc[i].Month = in.Month
	}
	res.MiscLogs = misc

	res.Summaries = e.managerSummaries(in)
	return res
}

func (e *Engine) reconcileProperty(
	in *Input,
	p *models.PropertyParameter,
	token string,
	txIdx *matcher.TransactionIndex,
	stmtIdx *matcher.StatementIndex,
	deposits decimal.Decimal,
) models.PropertyReconLog {
	actual := variance.Actual{Rent: decimal.Zero, HOA: decimal.Zero, Mortgage: decimal.Zero}
	if token != "" {
		actual.Rent, _ = matcher.PaidRent(stmtIdx, token)
		actual.HOA = e.matcher.CategoryTotal(txIdx, token, matcher.CategoryHOA)
		actual.Mortgage = e.matcher.CategoryTotal(txIdx, token, matcher.CategoryMortgage)
	}

	target := variance.TargetFor(p)
	result := variance.Calculate(target, actual)

	e.logger.WithFields(logger.Fields{
		"address":         p.Address,
		"house_number":    token,
		"actual_rent":     actual.Rent.StringFixed(2),
		"actual_hoa":      actual.HOA.StringFixed(2),
		"actual_mortgage": actual.Mortgage.StringFixed(2),
		"status":          result.Status,
	}).Debug("Reconciled property")

	return models.PropertyReconLog{
		RunID:                  in.RunID,
		Month:                  in.Month,
		PropertyManagementName: p.PropertyManagementName,
		Address:                p.Address,
		TargetRent:             target.ExpectedRent,
		ActualRent:             actual.Rent,
		RentVariance:           result.RentVariance,
		TargetHOA:              target.HOAFee,
		ActualHOA:              actual.HOA,
		HOAVariance:            result.HOAVariance,
		TargetMortgage:         target.MortgagePayment,
		ActualMortgage:         actual.Mortgage,
		MortgageVariance:       result.MortgageVariance,
		BankDepositTotal:       deposits,
		Status:                 result.Status,
	}
}

// managerSummaries compares each statement manager's net total with the
// deposits naming it. Managers are grouped case-insensitively and keep the
// spelling of their first statement.
func (e *Engine) managerSummaries(in *Input) []models.ManagerSummary {
	type group struct {
		name  string
		total decimal.Decimal
	}
	groups := make(map[string]*group)
	var order []string

	for _, stmt := range in.Statements {
		key := foldName(stmt.PropertyManagementName)
		g, ok := groups[key]
		if !ok {
			g = &group{name: strings.TrimSpace(stmt.PropertyManagementName), total: decimal.Zero}
			groups[key] = g
			order = append(order, key)
		}
		for _, p := range stmt.Properties {
			g.total = g.total.Add(p.NetContribution())
		}
	}
	sort.Strings(order)

	out := make([]models.ManagerSummary, 0, len(order))
	for _, key := range order {
		g := groups[key]
		bank, count := matcher.SumManagerDeposits(in.Transactions, g.name)
		diff, status := variance.CompareTotals(g.total, bank)

		sum := models.ManagerSummary{
			RunID:                  in.RunID,
			Month:                  in.Month,
			PropertyManagementName: g.name,
			StatementTotal:         g.total.Round(2),
			BankTotal:              bank.Round(2),
			Difference:             diff,
			DepositCount:           count,
			Status:                 status,
		}

		if count == 0 {
			fields := logger.Fields{"manager": g.name}
			if hint, dist, ok := matcher.ClosestMerchant(g.name, in.Transactions, e.matcher.Config().MaxHintDistance); ok {
				sum.SuggestedMerchant = hint
				fields["closest_merchant"] = hint
				fields["distance"] = dist
			}
			e.logger.WithFields(fields).Warn("No bank deposit names this manager")
		}
		out = append(out, sum)
	}
	return out
}

func (e *Engine) warnUnknownProperties(statements []models.ExtractedStatement, idx *matcher.StatementIndex, known map[string]bool) {
	for _, p := range idx.Unmatched() {
		e.logger.WithField("address", p.Address).Warn("Extracted property has no house number")
	}
	for _, stmt := range statements {
		for _, p := range stmt.Properties {
			token, ok := matcher.HouseNumber(p.Address)
			if ok && !known[token] {
				e.logger.WithFields(logger.Fields{
					"address": p.Address,
					"manager": stmt.PropertyManagementName,
				}).Warn("Extracted property has no current parameters")
			}
		}
	}
}

func currentParameters(params []models.PropertyParameter) []models.PropertyParameter {
	out := make([]models.PropertyParameter, 0, len(params))
	for _, p := range params {
		if p.IsCurrent() {
			out = append(out, p)
		}
	}
	return out
}

func statementRecords(in *Input) []models.StatementRecord {
	var out []models.StatementRecord
	for _, stmt := range in.Statements {
		for _, p := range stmt.Properties {
			out = append(out, models.StatementRecord{
				RunID:                  in.RunID,
				Month:                  in.Month,
				SourceFile:             stmt.SourceFile,
				StatementDate:          stmt.StatementDate,
				PropertyManagementName: stmt.PropertyManagementName,
				ExtractedProperty:      p,
			})
		}
	}
	return out
}

func foldName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Package summary derives report totals from persisted reconciliation logs.
// Every function is read-only and may be called any number of times.
package summary

import (
	"sort"

	"rent-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CategorySummary totals one category across properties.
type CategorySummary struct {
	Actual     decimal.Decimal `json:"actual"`
	Target     decimal.Decimal `json:"target"`
	Verified   int             `json:"verified"`
	Total      int             `json:"total"`
	Percentage decimal.Decimal `json:"percentage"`
}

func (c *CategorySummary) add(actual, target, variance decimal.Decimal) {
	c.Actual = c.Actual.Add(actual)
	c.Target = c.Target.Add(target)
	c.Total++
	if variance.IsZero() {
		c.Verified++
	}
}

func (c *CategorySummary) finish() {
	c.Percentage = Percentage(c.Verified, c.Total)
}

// Summary aggregates a set of property logs.
type Summary struct {
	PropertyCount    int                   `json:"property_count"`
	Rent             CategorySummary       `json:"rent"`
	HOA              CategorySummary       `json:"hoa"`
	Mortgage         CategorySummary       `json:"mortgage"`
	BankDepositTotal decimal.Decimal       `json:"bank_deposit_total"`
	StatusCounts     map[models.Status]int `json:"status_counts"`
}

// Group is the summary of one manager in one month.
type Group struct {
	Month                  models.Month `json:"month"`
	PropertyManagementName string       `json:"property_management_name"`
	Summary
}

// Percentage is verified/total*100 to two places, or zero when total is zero.
func Percentage(verified, total int) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(verified)).Mul(hundred).
		Div(decimal.NewFromInt(int64(total))).Round(2)
}

// Summarize totals actual and target per category, counts the properties
// whose variance is exactly zero and derives the verified percentage.
func Summarize(logs []models.PropertyReconLog) Summary {
	s := Summary{
		StatusCounts: map[models.Status]int{
			models.StatusMatched:     0,
			models.StatusDiscrepancy: 0,
			models.StatusMissing:     0,
		},
	}

	// Deposits are per manager and repeated on each of its properties.
	deposits := make(map[string]decimal.Decimal)
	for i := range logs {
		l := &logs[i]
		s.PropertyCount++
		s.Rent.add(l.ActualRent, l.TargetRent, l.RentVariance)
		s.HOA.add(l.ActualHOA, l.TargetHOA, l.HOAVariance)
		s.Mortgage.add(l.ActualMortgage, l.TargetMortgage, l.MortgageVariance)
		s.StatusCounts[l.Status]++
		deposits[l.Month.String()+"\x00"+l.PropertyManagementName] = l.BankDepositTotal
	}
	for _, d := range deposits {
		s.BankDepositTotal = s.BankDepositTotal.Add(d)
	}

	s.Rent.finish()
	s.HOA.finish()
	s.Mortgage.finish()
	return s
}

// ByManager summarizes each (month, manager) pair, ordered by month then name.
func ByManager(logs []models.PropertyReconLog) []Group {
	type key struct {
		month   models.Month
		manager string
	}
	grouped := make(map[key][]models.PropertyReconLog)
	var keys []key
	for _, l := range logs {
		k := key{l.Month, l.PropertyManagementName}
		if _, ok := grouped[k]; !ok {
			keys = append(keys, k)
		}
		grouped[k] = append(grouped[k], l)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].month != keys[j].month {
			return keys[i].month.Start().Before(keys[j].month.Start())
		}
		return keys[i].manager < keys[j].manager
	})

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		groups = append(groups, Group{
			Month:                  k.month,
			PropertyManagementName: k.manager,
			Summary:                Summarize(grouped[k]),
		})
	}
	return groups
}

// Package summary derives category totals, category distribution and the
// monthly trend from a list of ledger entries. Every function is pure.
package summary

import (
	"sort"

	"github.com/shopspring/decimal"

	"spendbook/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Share is one category's slice of the grand total.
type Share struct {
	Category core.Category
	Amount   core.Money
	// Percent is Amount / total * 100, rounded to two decimals.
	Percent decimal.Decimal
}

// MonthTotal is the sum of all entries dated within Month.
type MonthTotal struct {
	Month  core.MonthKey
	Amount core.Money
}

// Overview bundles every view computed over one entry list.
type Overview struct {
	Count        int
	Total        core.Money
	ByCategory   map[core.Category]core.Money
	Distribution []Share
	Monthly      []MonthTotal
}

// TotalsByCategory sums amounts per category. Categories without entries are absent.
func TotalsByCategory(entries []core.Entry) map[core.Category]core.Money {
	totals := make(map[core.Category]core.Money)
	for _, e := range entries {
		totals[e.Category] = totals[e.Category].Add(e.Amount)
	}
	return totals
}

// Distribution returns the raw category sums with their share of the grand total,
// ordered by the category display order. Unknown categories sort last by name.
func Distribution(entries []core.Entry) []Share {
	totals := TotalsByCategory(entries)
	if len(totals) == 0 {
		return []Share{}
	}

	var grand core.Money
	for _, amount := range totals {
		grand = grand.Add(amount)
	}

	shares := make([]Share, 0, len(totals))
	for category, amount := range totals {
		shares = append(shares, Share{
			Category: category,
			Amount:   amount,
			Percent:  percent(amount, grand),
		})
	}
	sort.Slice(shares, func(i, j int) bool {
		return categoryLess(shares[i].Category, shares[j].Category)
	})
	return shares
}

// MonthlyTrend buckets entries by calendar month, oldest month first.
func MonthlyTrend(entries []core.Entry) []MonthTotal {
	buckets := make(map[core.MonthKey]core.Money)
	for _, e := range entries {
		key := e.Date.MonthKey()
		buckets[key] = buckets[key].Add(e.Amount)
	}

	trend := make([]MonthTotal, 0, len(buckets))
	for month, amount := range buckets {
		trend = append(trend, MonthTotal{Month: month, Amount: amount})
	}
	sort.Slice(trend, func(i, j int) bool {
		return trend[i].Month.Before(trend[j].Month)
	})
	return trend
}

// Build computes every view over entries.
func Build(entries []core.Entry) Overview {
	var total core.Money
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return Overview{
		Count:        len(entries),
		Total:        total,
		ByCategory:   TotalsByCategory(entries),
		Distribution: Distribution(entries),
		Monthly:      MonthlyTrend(entries),
	}
}

func percent(part, whole core.Money) decimal.Decimal {
	if whole.Cents == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(part.Cents).
		Mul(hundred).
		DivRound(decimal.NewFromInt(whole.Cents), 2)
}

func categoryLess(a, b core.Category) bool {
	ia, ib := a.Index(), b.Index()
	switch {
	case ia >= 0 && ib >= 0:
		return ia < ib
	case ia >= 0:
		return true
	case ib >= 0:
		return false
	default:
		return a < b
	}
}

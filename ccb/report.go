/*
report.go - Derived views over a ledger snapshot

PURPOSE:
  Pure functions from a slice of cases to filtered views and aggregates.
  Nothing here reads or writes the ledger; callers take one snapshot with
  Repository.List and derive every view from it.

DEGRADATION:
  - Missing or unparseable createdAt: excluded from date-based views
  - Status outside the four known ones: counted under Unknown
  - Unparseable net amount: contributes zero, counted in UnparsedAmounts

ORDERING:
  Filters preserve ledger order. GroupByAnalyst sorts by total descending,
  then analyst name ascending. Months sorts chronologically. All sorts are
  stable, so identical input always gives identical output.
*/
package ccb

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS COUNTS
// =============================================================================

// StatusCounts tallies cases per status.
type StatusCounts struct {
	InReview int
	Pending  int
	Approved int
	Rejected int
	Unknown  int
	Total    int
}

func (sc *StatusCounts) add(s Status) {
	switch s {
	case StatusInReview:
		sc.InReview++
	case StatusPending:
		sc.Pending++
	case StatusApproved:
		sc.Approved++
	case StatusRejected:
		sc.Rejected++
	default:
		sc.Unknown++
	}
	sc.Total++
}

// Get returns the count for one status.
func (sc StatusCounts) Get(s Status) int {
	switch s {
	case StatusInReview:
		return sc.InReview
	case StatusPending:
		return sc.Pending
	case StatusApproved:
		return sc.Approved
	case StatusRejected:
		return sc.Rejected
	case StatusUnknown:
		return sc.Unknown
	case StatusAll:
		return sc.Total
	default:
		return 0
	}
}

// ByStatus returns the counts as a map keyed by status, Unknown included.
func (sc StatusCounts) ByStatus() map[Status]int {
	return map[Status]int{
		StatusInReview: sc.InReview,
		StatusPending:  sc.Pending,
		StatusApproved: sc.Approved,
		StatusRejected: sc.Rejected,
		StatusUnknown:  sc.Unknown,
	}
}

// CountByStatus tallies cases. An empty input gives all zeros.
func CountByStatus(cases []Case) StatusCounts {
	var sc StatusCounts
	for _, c := range cases {
		sc.add(c.AnalystStatus)
	}
	return sc
}

// =============================================================================
// FILTERS
// =============================================================================

// FilterByStatus keeps cases in status, in ledger order. StatusAll keeps
// everything.
func FilterByStatus(cases []Case, status Status) []Case {
	out := make([]Case, 0, len(cases))
	for _, c := range cases {
		if status == StatusAll || c.AnalystStatus == status {
			out = append(out, c)
		}
	}
	return out
}

// FilterByPeriod keeps cases whose createdAt is within p, inclusive.
// Cases without a parseable createdAt are dropped.
func FilterByPeriod(cases []Case, p Period) []Case {
	out := make([]Case, 0, len(cases))
	for _, c := range cases {
		if c.HasCreatedAt() && p.Contains(c.CreatedAt) {
			out = append(out, c)
		}
	}
	return out
}

// FilterByOwner keeps cases owned by analyst.
func FilterByOwner(cases []Case, analyst string) []Case {
	out := make([]Case, 0, len(cases))
	for _, c := range cases {
		if c.Owner == analyst {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// SORTING
// =============================================================================

type SortKey string

const (
	SortNone      SortKey = ""
	SortByID      SortKey = "id"
	SortByCreated SortKey = "created_at"
	SortByOwner   SortKey = "owner"
)

// SortCases returns a sorted copy. Ties keep ledger order. Cases without a
// createdAt sort last under SortByCreated regardless of direction.
func SortCases(cases []Case, key SortKey, desc bool) []Case {
	out := append([]Case(nil), cases...)
	if key == SortNone {
		return out
	}

	less := func(a, b Case) int {
		switch key {
		case SortByID:
			return strings.Compare(string(a.ID), string(b.ID))
		case SortByOwner:
			return strings.Compare(a.Owner, b.Owner)
		case SortByCreated:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
		return 0
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if key == SortByCreated && a.HasCreatedAt() != b.HasCreatedAt() {
			return a.HasCreatedAt()
		}
		cmp := less(a, b)
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
	return out
}

// =============================================================================
// PER-ANALYST
// =============================================================================

type AnalystSummary struct {
	Analyst         string
	Total           int
	Counts          StatusCounts
	NetAmount       decimal.Decimal
	UnparsedAmounts int
}

// GroupByAnalyst summarizes cases per owner, sorted by total descending and
// analyst name ascending on ties.
func GroupByAnalyst(cases []Case) []AnalystSummary {
	index := make(map[string]int)
	var out []AnalystSummary

	for _, c := range cases {
		i, ok := index[c.Owner]
		if !ok {
			i = len(out)
			index[c.Owner] = i
			out = append(out, AnalystSummary{Analyst: c.Owner, NetAmount: decimal.Zero})
		}
		s := &out[i]
		s.Counts.add(c.AnalystStatus)
		s.Total = s.Counts.Total
		if v, ok := c.NetAmountValue(); ok {
			s.NetAmount = s.NetAmount.Add(v)
		} else {
			s.UnparsedAmounts++
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Analyst < out[j].Analyst
	})
	if out == nil {
		out = []AnalystSummary{}
	}
	return out
}

// =============================================================================
// PER-MONTH
// =============================================================================

type MonthSummary struct {
	Month           string
	Total           int
	Counts          StatusCounts
	NetAmount       decimal.Decimal
	UnparsedAmounts int
}

// Months lists the distinct MM/YYYY buckets, oldest first.
func Months(cases []Case) []string {
	type bucket struct {
		key   string
		start time.Time
	}
	seen := make(map[string]bool)
	var buckets []bucket
	for _, c := range cases {
		key, ok := MonthKey(c)
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		y, m, _ := c.CreatedAt.Date()
		buckets = append(buckets, bucket{key: key, start: time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)})
	}

	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].start.Before(buckets[j].start) })

	out := make([]string, len(buckets))
	for i, b := range buckets {
		out[i] = b.key
	}
	return out
}

// MonthlySummary aggregates the cases whose bucket is month (MM/YYYY).
func MonthlySummary(cases []Case, month string) MonthSummary {
	s := MonthSummary{Month: month, NetAmount: decimal.Zero}
	for _, c := range cases {
		key, ok := MonthKey(c)
		if !ok || key != month {
			continue
		}
		s.Counts.add(c.AnalystStatus)
		if v, ok := c.NetAmountValue(); ok {
			s.NetAmount = s.NetAmount.Add(v)
		} else {
			s.UnparsedAmounts++
		}
	}
	s.Total = s.Counts.Total
	return s
}

// GroupByMonth returns one summary per bucket, oldest first.
func GroupByMonth(cases []Case) []MonthSummary {
	months := Months(cases)
	out := make([]MonthSummary, len(months))
	for i, m := range months {
		out[i] = MonthlySummary(cases, m)
	}
	return out
}

package core

// Summary aggregates a set of expenses already scoped to one owner.
type Summary struct {
	Total      Money              `json:"total"`
	ByCategory map[Category]Money `json:"categoryWise"`
}

// CategoryStat is a per-category rollup used by the stats endpoint.
type CategoryStat struct {
	Category Category `json:"category"`
	Total    Money    `json:"total"`
	Count    int      `json:"count"`
}

// OverallStat is the rollup across all of an owner's expenses.
type OverallStat struct {
	Total Money `json:"total"`
	Count int   `json:"count"`
}

// StatsReport combines per-category and overall rollups.
type StatsReport struct {
	CategoryStats []CategoryStat `json:"categoryStats"`
	Overall       OverallStat    `json:"overall"`
}

// Summarize computes the arithmetic total and the per-category totals over a
// result set. Categories absent from the set are absent from the map, so the
// invariant "total == sum over expenses" holds for any filter.
func Summarize(expenses []Expense) Summary {
	s := Summary{ByCategory: make(map[Category]Money)}
	for _, e := range expenses {
		s.Total = s.Total.Add(e.Amount)
		s.ByCategory[e.Category] = s.ByCategory[e.Category].Add(e.Amount)
	}
	return s
}

package core

// Statistics are the running totals over a set of records.
type Statistics struct {
	Income  Money
	Expense Money
}

// Net returns income minus expense. It can be negative.
func (s Statistics) Net() Money {
	return Money{Cents: s.Income.Cents - s.Expense.Cents}
}

// ProjectedAnnual is a naive run-rate projection: the income total times
// twelve. It deliberately ignores monthly variance.
func (s Statistics) ProjectedAnnual() Money {
	return Money{Cents: s.Income.Cents * 12}
}

// ComputeStatistics sums the given records by type. Aggregation never fails:
// a corrupt amount on a record already in the collection counts as zero
// rather than aborting the whole set.
func ComputeStatistics(records []Record) Statistics {
	var stats Statistics
	for _, r := range records {
		cents := r.Amount.Cents
		if cents < 0 {
			cents = 0
		}
		switch r.Type {
		case Income:
			stats.Income.Cents += cents
		case Expense:
			stats.Expense.Cents += cents
		}
	}
	return stats
}

package core

import (
	"fmt"
	"time"
)

// Record is a single dated income or expense transaction. A record is created
// once, never edited, and only leaves the collection through deletion.
type Record struct {
	ID           string // assigned by the storage layer; empty while pending
	Type         RecordType
	Amount       Money
	MainCategory string
	SubCategory  string // income only
	Size         string // income only, size-bearing categories; empty = absent
	Note         string
	Photo        string // opaque attachment payload, never interpreted here
	OccurredAt   time.Time
	CreatedAt    time.Time
}

// Normalize strips fields that do not apply to the record's type or category:
// expense records carry no subcategory or size, and the size tag is dropped
// for income categories without a size attribute even if the caller supplied
// one. Unknown categories are left for Validate to reject.
func (r Record) Normalize(tax *Taxonomy) Record {
	switch r.Type {
	case Expense:
		r.SubCategory = ""
		r.Size = ""
	case Income:
		if hasSize, err := tax.HasSizeAttribute(r.MainCategory); err == nil && !hasSize {
			r.Size = ""
		}
	}
	return r
}

// Validate checks the record against the taxonomy. It assumes Normalize has
// run; a normalized record that passes Validate satisfies the category and
// size invariants.
func (r Record) Validate(tax *Taxonomy) error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, r.Type)
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	switch r.Type {
	case Income:
		subs, err := tax.SubCategories(r.MainCategory)
		if err != nil {
			return err
		}
		found := false
		for _, s := range subs {
			if s == r.SubCategory {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %q is not a subcategory of %q", ErrInvalidCategory, r.SubCategory, r.MainCategory)
		}
		hasSize, err := tax.HasSizeAttribute(r.MainCategory)
		if err != nil {
			return err
		}
		if !hasSize && r.Size != "" {
			return fmt.Errorf("%w: category %q does not take a size", ErrInvalidCategory, r.MainCategory)
		}
	case Expense:
		if !tax.IsValidExpenseCategory(r.MainCategory) {
			return fmt.Errorf("%w: unknown expense category %q", ErrInvalidCategory, r.MainCategory)
		}
	}
	return nil
}

// InMonth reports whether the record's occurrence timestamp falls in the
// given calendar month, read in the timestamp's own location. No timezone
// normalization is applied.
func (r Record) InMonth(year int, month time.Month) bool {
	y, m, _ := r.OccurredAt.Date()
	return y == year && m == month
}

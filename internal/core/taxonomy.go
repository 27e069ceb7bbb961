package core

import (
	"errors"
	"fmt"
)

const (
	Income  RecordType = "income"
	Expense RecordType = "expense"
)

type (
	// RecordType distinguishes money coming in from money going out.
	RecordType string

	// IncomeCategory is a top-level income classification with its ordered
	// subcategories. HasSize marks categories where a size tag (e.g. cake
	// diameter) applies to each sale.
	IncomeCategory struct {
		Name          string
		Subcategories []string
		HasSize       bool
	}

	// Taxonomy is the immutable category structure records are validated
	// against. It is compiled-in configuration, not user data: there are no
	// mutation operations.
	Taxonomy struct {
		income     []IncomeCategory
		incomeIdx  map[string]int
		expense    []string
		expenseIdx map[string]struct{}
		sizes      []string
	}
)

var (
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidType     = errors.New("invalid record type")
)

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	return t == Income || t == Expense
}

// NewTaxonomy builds a taxonomy from ordered income categories, expense
// category names and suggested size labels. Category names must be unique and
// every income category needs at least one subcategory.
func NewTaxonomy(income []IncomeCategory, expense []string, sizes []string) (*Taxonomy, error) {
	t := &Taxonomy{
		income:     make([]IncomeCategory, 0, len(income)),
		incomeIdx:  make(map[string]int, len(income)),
		expense:    make([]string, 0, len(expense)),
		expenseIdx: make(map[string]struct{}, len(expense)),
		sizes:      append([]string(nil), sizes...),
	}
	for _, c := range income {
		if c.Name == "" {
			return nil, errors.New("income category with empty name")
		}
		if _, dup := t.incomeIdx[c.Name]; dup {
			return nil, fmt.Errorf("duplicate income category %q", c.Name)
		}
		if len(c.Subcategories) == 0 {
			return nil, fmt.Errorf("income category %q has no subcategories", c.Name)
		}
		seen := make(map[string]struct{}, len(c.Subcategories))
		for _, s := range c.Subcategories {
			if s == "" {
				return nil, fmt.Errorf("income category %q has an empty subcategory", c.Name)
			}
			if _, dup := seen[s]; dup {
				return nil, fmt.Errorf("income category %q has duplicate subcategory %q", c.Name, s)
			}
			seen[s] = struct{}{}
		}
		c.Subcategories = append([]string(nil), c.Subcategories...)
		t.incomeIdx[c.Name] = len(t.income)
		t.income = append(t.income, c)
	}
	for _, name := range expense {
		if name == "" {
			return nil, errors.New("expense category with empty name")
		}
		if _, dup := t.expenseIdx[name]; dup {
			return nil, fmt.Errorf("duplicate expense category %q", name)
		}
		t.expenseIdx[name] = struct{}{}
		t.expense = append(t.expense, name)
	}
	return t, nil
}

// DefaultTaxonomy returns the bakery category structure the application ships
// with.
func DefaultTaxonomy() *Taxonomy {
	t, err := NewTaxonomy(
		[]IncomeCategory{
			{
				Name:          "蛋糕",
				Subcategories: []string{"水果奶油蛋糕", "豆乳香芋蛋糕", "奥利奥咸奶油蛋糕", "伯爵草莓蛋糕", "抹茶红豆乳蛋糕", "巧克力开心果蛋糕", "板栗蛋糕", "其它"},
				HasSize:       true,
			},
			{
				Name:          "甜品",
				Subcategories: []string{"纸杯蛋糕", "花酥", "马卡龙", "其它"},
			},
			{
				Name:          "烘焙课程",
				Subcategories: []string{"初级烘焙课", "中级烘焙课", "高级烘焙课", "其它"},
			},
		},
		[]string{"基础主材（面粉类、糖类）", "乳制品 & 油脂类", "新鲜水果", "鸡蛋", "巧克力", "装饰材料", "包装材料", "其它"},
		[]string{"4寸", "6寸", "8寸", "10寸", "12寸"},
	)
	if err != nil {
		panic("default taxonomy: " + err.Error())
	}
	return t
}

// MainCategories returns the top-level category names for the given type, in
// definition order.
func (t *Taxonomy) MainCategories(rt RecordType) []string {
	switch rt {
	case Income:
		names := make([]string, len(t.income))
		for i, c := range t.income {
			names[i] = c.Name
		}
		return names
	case Expense:
		return append([]string(nil), t.expense...)
	default:
		return nil
	}
}

// SubCategories returns the ordered subcategories of an income category.
func (t *Taxonomy) SubCategories(main string) ([]string, error) {
	i, ok := t.incomeIdx[main]
	if !ok {
		return nil, fmt.Errorf("%w: unknown income category %q", ErrInvalidCategory, main)
	}
	return append([]string(nil), t.income[i].Subcategories...), nil
}

// HasSizeAttribute reports whether records in an income category carry a size
// tag.
func (t *Taxonomy) HasSizeAttribute(main string) (bool, error) {
	i, ok := t.incomeIdx[main]
	if !ok {
		return false, fmt.Errorf("%w: unknown income category %q", ErrInvalidCategory, main)
	}
	return t.income[i].HasSize, nil
}

// IsValidExpenseCategory reports whether name is a known expense category.
func (t *Taxonomy) IsValidExpenseCategory(name string) bool {
	_, ok := t.expenseIdx[name]
	return ok
}

// SuggestedSizes returns the size labels offered for size-bearing categories.
// The labels are suggestions for form population; any non-empty size string is
// accepted on a record.
func (t *Taxonomy) SuggestedSizes() []string {
	return append([]string(nil), t.sizes...)
}

package sheets

import (
	"bakeledger/internal/core"
)

// Labels used in exported rows. The report is rendered in the shop's working
// language.
const (
	labelIncome     = "收入"
	labelExpense    = "支出"
	sizePlaceholder = "-"
)

// Header column titles, in row order.
func Header(currency string) []string {
	return []string{"日期", "类型", "一级分类", "二级分类/明细", "尺寸", "金额 (" + currency + ")", "备注"}
}

// Row is the flat, already-localized projection of a record that spreadsheet
// adapters consume. RecordID is carried for dedupe and removal; it is not a
// display column.
type Row struct {
	RecordID    string
	Date        string
	TypeLabel   string
	Category    string
	Subcategory string
	Size        string
	Amount      string
	Note        string
}

// Columns returns the display cells in header order.
func (r Row) Columns() []string {
	return []string{r.Date, r.TypeLabel, r.Category, r.Subcategory, r.Size, r.Amount, r.Note}
}

// ProjectRow flattens one record for export.
func ProjectRow(rec core.Record) Row {
	label := labelExpense
	if rec.Type == core.Income {
		label = labelIncome
	}
	size := rec.Size
	if size == "" {
		size = sizePlaceholder
	}
	return Row{
		RecordID:    rec.ID,
		Date:        rec.OccurredAt.Format("2006-01-02"),
		TypeLabel:   label,
		Category:    rec.MainCategory,
		Subcategory: rec.SubCategory,
		Size:        size,
		Amount:      rec.Amount.String(),
		Note:        rec.Note,
	}
}

// ProjectRows flattens a record sequence, preserving order.
func ProjectRows(records []core.Record) []Row {
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = ProjectRow(rec)
	}
	return rows
}

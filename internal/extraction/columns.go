package extraction

import "strings"

// columnMap locates the statement columns in a header row. Bank exports
// vary a lot in header naming, so matching is fuzzy and case-insensitive.
type columnMap struct {
	date        int
	description int
	amount      int
	debit       int
	credit      int
	category    int
}

func newColumnMap() columnMap {
	return columnMap{date: -1, description: -1, amount: -1, debit: -1, credit: -1, category: -1}
}

func (m columnMap) usable() bool {
	return m.description >= 0 && (m.amount >= 0 || m.debit >= 0 || m.credit >= 0)
}

func mapHeader(header []string) columnMap {
	m := newColumnMap()
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		switch {
		case m.date < 0 && (name == "date" || strings.Contains(name, "transaction date") || strings.Contains(name, "posting date")):
			m.date = i
		case m.description < 0 && (strings.Contains(name, "description") || strings.Contains(name, "narrative") ||
			strings.Contains(name, "details") || strings.Contains(name, "merchant") || name == "memo"):
			m.description = i
		case m.amount < 0 && (name == "amount" || strings.Contains(name, "value")):
			m.amount = i
		case m.debit < 0 && strings.Contains(name, "debit"):
			m.debit = i
		case m.credit < 0 && strings.Contains(name, "credit"):
			m.credit = i
		case m.category < 0 && strings.Contains(name, "category"):
			m.category = i
		}
	}
	return m
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

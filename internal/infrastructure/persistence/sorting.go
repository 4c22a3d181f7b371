package persistence

import "strings"

// sortSpec whitelists the columns a list query may order by. Anything else
// falls back to the default so caller input never reaches ORDER BY.
type sortSpec struct {
	columns  map[string]struct{}
	fallback string
}

func newSortSpec(fallback string, columns ...string) sortSpec {
	set := make(map[string]struct{}, len(columns)+1)
	set[fallback] = struct{}{}
	for _, c := range columns {
		set[c] = struct{}{}
	}
	return sortSpec{columns: set, fallback: fallback}
}

var (
	transactionSort = newSortSpec("due_date",
		"created_at", "updated_at", "paid_date", "status", "signed_amount", "transaction_type")
	scheduleItemSort = newSortSpec("scheduled_due_date",
		"created_at", "updated_at", "priority", "status")
)

func (s sortSpec) column(field string) string {
	field = strings.ToLower(strings.TrimSpace(field))
	if _, ok := s.columns[field]; ok {
		return field
	}
	return s.fallback
}

// clause builds "<column> <ASC|DESC>". Direction defaults to DESC.
func (s sortSpec) clause(field, dir string) string {
	if strings.EqualFold(strings.TrimSpace(dir), "asc") {
		return s.column(field) + " ASC"
	}
	return s.column(field) + " DESC"
}

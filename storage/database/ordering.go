package database

import (
	"strings"

	"github.com/trezcool/homeroom/core"
)

// OrderBy renders an ORDER BY clause from ordering, keeping only fields listed in columns
// (API field name -> column). fallback is used when nothing usable is left.
func OrderBy(ordering []core.DBOrdering, columns map[string]string, fallback string) string {
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := columns[ord.Field]
		if !ok {
			continue
		}
		clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(clauses) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

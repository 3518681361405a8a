package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/homeroom/core"
)

const orderingParam = "ordering"

// Ordering is bound from "?ordering=name,-created_at": a "-" prefix sorts descending.
type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind parses the ordering query param. Fields outside allowed, and repeated fields, are
// reported as a validation error on "ordering" rather than ignored.
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) error {
	raw := strings.TrimSpace(ctx.QueryParam(orderingParam))
	if raw == "" {
		return nil
	}

	known := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		known[f] = true
	}
	seen := make(map[string]bool)

	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		switch {
		case !known[field]:
			return core.NewFieldError(orderingParam, "unknown field "+quote(field)+"; use one of: "+strings.Join(allowed, ", "))
		case seen[field]:
			return core.NewFieldError(orderingParam, "field "+quote(field)+" is repeated")
		}
		seen[field] = true
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return nil
}

func quote(s string) string {
	return `"` + s + `"`
}

package query

import (
	"fmt"
	"strings"
)

// Dialect selects placeholder syntax and case-insensitive matching.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// Compiled is a WHERE clause and its positional arguments.
type Compiled struct {
	Where string
	Args  []any
}

// Compile renders the spec for dialect d. For Postgres, placeholders are
// numbered from argOffset+1 so the clause can follow earlier arguments.
func (s Spec) Compile(d Dialect, argOffset int) Compiled {
	var args []any
	next := func(arg any) string {
		args = append(args, arg)
		if d == Postgres {
			return fmt.Sprintf("$%d", argOffset+len(args))
		}
		return "?"
	}

	if len(s.preds) == 0 {
		return Compiled{Where: "1 = 1"}
	}

	clauses := make([]string, 0, len(s.preds))
	for _, p := range s.preds {
		clauses = append(clauses, p.compile(d, next))
	}
	return Compiled{Where: strings.Join(clauses, " AND "), Args: args}
}

func (p StatusIs) compile(_ Dialect, next func(any) string) string {
	return "status = " + next(string(p.Status))
}

func (p TypeIs) compile(_ Dialect, next func(any) string) string {
	return "type = " + next(string(p.Type))
}

func (p LocationContains) compile(d Dialect, next func(any) string) string {
	pattern := "%" + escapeLike(strings.ToLower(p.Substring)) + "%"
	if d == Postgres {
		return "location ILIKE " + next(pattern) + ` ESCAPE '\'`
	}
	return "LOWER(location) LIKE " + next(pattern) + ` ESCAPE '\'`
}

func (p CampusIs) compile(_ Dialect, next func(any) string) string {
	return "campus = " + next(string(p.Campus))
}

func (p HasEmbedding) compile(_ Dialect, _ func(any) string) string {
	// Column is one of two constants, never user input.
	return string(p.Column) + " IS NOT NULL"
}

func (p CreatedBefore) compile(_ Dialect, next func(any) string) string {
	return "created_ts < " + next(p.Time.UnixMilli())
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

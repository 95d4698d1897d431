// Package query builds store-independent item filters. A Spec is an
// immutable conjunction of predicates that can be evaluated in memory or
// compiled once into a SQL WHERE clause for a given dialect.
package query

import (
	"strings"
	"time"

	"github.com/vbonduro/lostfound/internal/domain"
)

// Column names an embedding column.
type Column string

const (
	TextEmbedding  Column = "text_embedding"
	ImageEmbedding Column = "image_embedding"
)

// Predicate is one filter term. The set of predicates is closed; see the
// concrete types below.
type Predicate interface {
	matches(item *domain.Item) bool
	compile(d Dialect, next func(arg any) string) string
}

type StatusIs struct{ Status domain.Status }

type TypeIs struct{ Type domain.ItemType }

// LocationContains matches a case-insensitive substring of the location.
type LocationContains struct{ Substring string }

type CampusIs struct{ Campus domain.Campus }

// HasEmbedding requires the named embedding to be present.
type HasEmbedding struct{ Column Column }

type CreatedBefore struct{ Time time.Time }

// Spec is a conjunction of predicates. The zero value matches everything.
type Spec struct {
	preds []Predicate
}

// And returns a new Spec with preds appended. The receiver is not modified.
func (s Spec) And(preds ...Predicate) Spec {
	out := make([]Predicate, 0, len(s.preds)+len(preds))
	out = append(out, s.preds...)
	out = append(out, preds...)
	return Spec{preds: out}
}

func (s Spec) Predicates() []Predicate {
	return append([]Predicate(nil), s.preds...)
}

// Matches evaluates the spec against an in-memory item.
func (s Spec) Matches(item *domain.Item) bool {
	for _, p := range s.preds {
		if !p.matches(item) {
			return false
		}
	}
	return true
}

// FromFilter derives the candidate spec for a listing or search filter.
// Archived and resolved items are excluded unless IncludeArchived is set.
func FromFilter(f domain.Filter) Spec {
	var s Spec
	if !f.IncludeArchived {
		s = s.And(StatusIs{Status: domain.StatusActive})
	}
	if f.Type != "" {
		s = s.And(TypeIs{Type: f.Type})
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		s = s.And(LocationContains{Substring: loc})
	}
	if f.Campus != "" {
		s = s.And(CampusIs{Campus: f.Campus})
	}
	return s
}

func (p StatusIs) matches(item *domain.Item) bool { return item.Status == p.Status }

func (p TypeIs) matches(item *domain.Item) bool { return item.Type == p.Type }

func (p LocationContains) matches(item *domain.Item) bool {
	return strings.Contains(strings.ToLower(item.Location), strings.ToLower(p.Substring))
}

func (p CampusIs) matches(item *domain.Item) bool { return item.Campus == p.Campus }

func (p HasEmbedding) matches(item *domain.Item) bool {
	switch p.Column {
	case TextEmbedding:
		return item.TextEmbedding != nil
	case ImageEmbedding:
		return item.ImageEmbedding != nil
	}
	return false
}

func (p CreatedBefore) matches(item *domain.Item) bool { return item.CreatedAt.Before(p.Time) }

package query

// Order is a listing sort order. Ties always fall back to id.
type Order int

const (
	NewestFirst Order = iota
	OldestFirst
	TitleAsc
	RecentlyArchived
)

// ListOptions paginates a listing. Limit 0 means no limit.
type ListOptions struct {
	Limit   int
	Offset  int
	OrderBy Order
}

// OrderClause renders the ORDER BY expression, valid in every dialect.
func (o Order) OrderClause() string {
	switch o {
	case OldestFirst:
		return "created_ts ASC, id ASC"
	case TitleAsc:
		return "LOWER(title) ASC, id ASC"
	case RecentlyArchived:
		return "archived_ts DESC, id DESC"
	default:
		return "created_ts DESC, id DESC"
	}
}

// ParseOrder maps the listing sort parameter; unknown values sort newest first.
func ParseOrder(s string) Order {
	switch s {
	case "oldest":
		return OldestFirst
	case "title":
		return TitleAsc
	}
	return NewestFirst
}

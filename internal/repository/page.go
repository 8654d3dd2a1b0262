package repository

// Pagination bounds for list queries.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 10
)

// Page is an offset/limit window over an id-ordered listing.
type Page struct {
	Offset int
	Limit  int
}

// NewPage normalizes raw pagination input. A non-positive limit becomes
// the default, larger limits are clamped to MaxPageLimit, and negative
// offsets become zero.
func NewPage(offset, limit int) Page {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Offset: offset, Limit: limit}
}

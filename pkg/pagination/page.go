// Package pagination holds the two paging styles the API uses: numbered
// pages for the credit ledger and keyset cursors for notifications.
package pagination

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// ClampLimit maps a requested page size into [1, MaxLimit], using
// DefaultLimit when none was requested.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// Page is a 1-based numbered page.
type Page struct {
	Page     int
	PageSize int
}

// Normalize fills unset fields and clamps the size. defaultSize applies when
// the caller sent no size; it is clamped like any other size.
func (p Page) Normalize(defaultSize int) Page {
	p.Page = max(p.Page, 1)
	if p.PageSize <= 0 {
		p.PageSize = defaultSize
	}
	p.PageSize = ClampLimit(p.PageSize)
	return p
}

func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// TotalPages is the number of pages needed to show total rows.
func (p Page) TotalPages(total int64) int {
	if p.PageSize <= 0 || total <= 0 {
		return 0
	}
	size := int64(p.PageSize)
	return int((total + size - 1) / size)
}

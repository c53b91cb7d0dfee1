package domain

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

type SortOrder string

const (
	Desc SortOrder = "desc"
	Asc  SortOrder = "asc"
)

// Page is a 1-based offset pagination request.
type Page struct {
	Number int
	Limit  int
	Order  SortOrder
}

// Normalize fills defaults and clamps the limit.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Order != Asc {
		p.Order = Desc
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

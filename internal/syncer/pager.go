package syncer

import (
	"iter"

	"github.com/dmitrijs2005/authconnector/internal/models"
)

// DefaultUsersPerRequest is the page size used when none is configured.
const DefaultUsersPerRequest = 5000

// Pager splits local users into request-sized pages.
type Pager struct {
	users   []models.LocalUser
	perPage int
}

func NewPager(users []models.LocalUser, perPage int) *Pager {
	if perPage <= 0 {
		perPage = DefaultUsersPerRequest
	}
	return &Pager{users: users, perPage: perPage}
}

// RequestsCount is the number of requests a run is expected to take. It is
// never below one, even for an empty set; see PageCount for the number of
// pages actually produced.
func (p *Pager) RequestsCount() int {
	return max(1, p.PageCount())
}

// PageCount is ceil(total / perPage).
func (p *Pager) PageCount() int {
	return (len(p.users) + p.perPage - 1) / p.perPage
}

func (p *Pager) PerPage() int {
	return p.perPage
}

func (p *Pager) Total() int {
	return len(p.users)
}

// Pages yields 1-based page numbers with their users in original order.
// Every call starts from the first page. Iteration ends at the first empty
// page, so an empty set yields nothing.
func (p *Pager) Pages() iter.Seq2[int, []models.LocalUser] {
	return func(yield func(int, []models.LocalUser) bool) {
		for page := 1; ; page++ {
			start := (page - 1) * p.perPage
			if start >= len(p.users) {
				return
			}
			end := min(start+p.perPage, len(p.users))
			if !yield(page, p.users[start:end:end]) {
				return
			}
		}
	}
}

package auth

import (
	"context"
	"math"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPageNumber   = 1_000_000
)

// UserStore describes persistence operations required by the auth subsystem.
// Implementations return ErrNotFound for unknown ids and ErrConflict for
// duplicate usernames.
type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByUsername(ctx context.Context, username string) (*User, error)
	CountUsers(ctx context.Context, filter ScopeFilter) (int, error)
	ListUsers(ctx context.Context, filter ScopeFilter, page Page) ([]*User, error)
	InsertUser(ctx context.Context, u *User) error
	ReplaceUser(ctx context.Context, u *User) error
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// NewPage clamps number and size to sane bounds.
func NewPage(number, size int) Page {
	switch {
	case number < 1:
		number = 1
	case number > MaxPageNumber:
		number = MaxPageNumber
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return Page{Number: number, Size: size}
}

// Offset is the number of rows to skip. It saturates at math.MaxInt
// instead of wrapping negative.
func (p Page) Offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// Pagination describes a returned page.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// Paginate builds page metadata for total matching rows.
func Paginate(p Page, total int) Pagination {
	pages := 0
	if p.Size > 0 {
		pages = (total + p.Size - 1) / p.Size
	}
	return Pagination{Page: p.Number, PageSize: p.Size, TotalItems: total, TotalPages: pages}
}

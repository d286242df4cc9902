package repository

import (
	"context"
	"maps"
	"math"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/alimasry/elearning-docstore/store"
)

// Pagination defaults.
const (
	DefaultPage    = 1
	DefaultLimit   = 10
	DefaultOrderBy = store.FieldCreatedAt
)

// maxOffset is the largest offset sent to a store. Firestore carries
// offsets as int32.
const maxOffset = math.MaxInt32

// DefaultDirection is the sort direction used when a PageRequest sets none.
var DefaultDirection = store.Desc

// PageRequest selects one page of a collection. Zero values take the
// package defaults. Direction is "asc" or "desc"; anything else means
// DefaultDirection.
type PageRequest struct {
	Page      int
	Limit     int
	OrderBy   string
	Direction string
}

func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.OrderBy == "" {
		p.OrderBy = DefaultOrderBy
	}
	p.Direction = store.ParseDirection(p.Direction, DefaultDirection).String()
	return p
}

// offset reports how many records precede the page. ok is false when the
// page starts beyond maxOffset and so cannot hold any record.
func (p PageRequest) offset() (n int, ok bool) {
	if p.Page-1 > maxOffset/p.Limit {
		return 0, false
	}
	return (p.Page - 1) * p.Limit, true
}

// Pagination describes where a Page sits in the whole collection.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Page is one slice of records plus its position.
type Page struct {
	Data       []store.Data `json:"data"`
	Pagination Pagination   `json:"pagination"`
}

func newPagination(page, limit, total int) Pagination {
	totalPages := (total + limit - 1) / limit
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Paginate returns the requested page ordered by req.OrderBy. The total is
// read by a second full scan, so it may differ from the page if a write
// lands in between.
func (r *Repository) Paginate(ctx context.Context, req PageRequest) (*Page, error) {
	req = req.normalize()
	ctx, span := r.start(ctx, "paginate",
		attribute.Int("page", req.Page),
		attribute.Int("limit", req.Limit),
		attribute.String("order_by", req.OrderBy),
		attribute.String("direction", req.Direction),
	)
	defer span.End()

	coll := r.coll()
	data := []store.Data{}
	if offset, ok := req.offset(); ok {
		snap, err := coll.OrderBy(req.OrderBy, store.ParseDirection(req.Direction, DefaultDirection)).
			Offset(offset).
			Limit(req.Limit).
			Get(ctx)
		if err != nil {
			return nil, r.fail(span, "paginate", "", err)
		}
		data = records(snap)
	}
	all, err := coll.Get(ctx)
	if err != nil {
		return nil, r.fail(span, "paginate", "", err)
	}

	return &Page{
		Data:       data,
		Pagination: newPagination(req.Page, req.Limit, all.Size()),
	}, nil
}

func sortedFields(filters map[string]any) []string {
	return slices.Sorted(maps.Keys(filters))
}

package services

import (
	"context"
	"iter"
)

// PageFunc fetches the page starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) (*Page[T], error)

// Pager walks an offset-paginated listing lazily.
//
// Each range over [Pager.Pages] starts again at offset zero. A page is requested only when
// the previous one has been consumed, so breaking out of the loop stops all further calls.
type Pager[T any] struct {
	pageSize int
	fetch    PageFunc[T]
}

// NewPager creates a pager requesting pageSize items per call.
func NewPager[T any](pageSize int, fetch PageFunc[T]) *Pager[T] {
	return &Pager[T]{pageSize: max(1, pageSize), fetch: fetch}
}

// Pages yields each page's items in order. A fetch error is yielded once and ends the sequence.
func (p *Pager[T]) Pages(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		offset := 0
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := p.fetch(ctx, offset, p.pageSize)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(page.Items, nil) {
				return
			}
			if !page.HasNext {
				return
			}
			offset += p.pageSize
		}
	}
}

// All collects every item.
func (p *Pager[T]) All(ctx context.Context) ([]T, error) {
	var all []T
	for items, err := range p.Pages(ctx) {
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}

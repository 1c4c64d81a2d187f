// Package scan walks ordered item IDs looking for the first item that matches a condition.
package scan

import (
	"context"
	"log/slog"

	"github.com/danielmmetz/hn-apicheck/hn"
)

// FetchFunc resolves an ID to an item. A nil item with a nil error means absent.
type FetchFunc[T any] func(ctx context.Context, id int64) (*T, error)

// FindFirst fetches ids strictly in order and returns the first present item
// for which match returns true. Absent items are skipped. It returns (nil, nil)
// when nothing matches. A fetch error stops the scan and is returned as is.
func FindFirst[T any](ctx context.Context, ids []int64, fetch FetchFunc[T], match func(*T) bool) (*T, error) {
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, err := fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		if item == nil {
			continue
		}
		if match(item) {
			slog.Debug("scan: match", "id", id, "index", i)
			return item, nil
		}
	}
	slog.Debug("scan: no match", "scanned", len(ids))
	return nil, nil
}

// Stories scans ids as stories fetched through client.
func Stories(ctx context.Context, client *hn.Client, ids []int64, match func(*hn.Story) bool) (*hn.Story, error) {
	return FindFirst(ctx, ids, client.GetStory, match)
}

// Comments scans ids as comments fetched through client.
func Comments(ctx context.Context, client *hn.Client, ids []int64, match func(*hn.Comment) bool) (*hn.Comment, error) {
	return FindFirst(ctx, ids, client.GetComment, match)
}

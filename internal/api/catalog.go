package api

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"

	"github.com/packtdl/packt-dl/internal/constants"
	"github.com/packtdl/packt-dl/internal/models"
)

// PageFunc is called after each catalog page with the pages fetched so far
// and the total page count.
type PageFunc func(fetched, total int)

// ListOwnedItems pages through the account's entitlements and returns them
// de-duplicated by product ID in first-seen order. Records without a
// product ID cannot be downloaded and are dropped.
//
// The first request (offset 0) learns the total count; further pages are
// fetched at multiples of pageSize while offset < count. Any failure aborts
// the enumeration.
func (c *Client) ListOwnedItems(ctx context.Context, pageSize int, onPage PageFunc) (*models.Catalog, error) {
	if pageSize < 1 || pageSize > constants.MaxPageSize {
		return nil, fmt.Errorf("invalid page size %d", pageSize)
	}

	catalog := &models.Catalog{}
	seen := make(map[models.ProductID]struct{})

	for offset, fetched := 0, 0; ; offset += pageSize {
		page, err := c.fetchProductsPage(ctx, offset, pageSize)
		if err != nil {
			return nil, err
		}
		if offset == 0 {
			catalog.ReportedCount = page.Count
		}

		catalog.RawCount += len(page.Data)
		for _, item := range page.Data {
			if item.ID == "" {
				c.logger.Warn().Str("name", item.Name).Int("offset", offset).Msg("Catalog record has no product ID, ignoring")
				continue
			}
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			catalog.Items = append(catalog.Items, item)
		}

		fetched++
		if onPage != nil {
			onPage(fetched, pageCount(catalog.ReportedCount, pageSize))
		}
		if offset+pageSize >= catalog.ReportedCount {
			break
		}
	}

	if dups := catalog.RawCount - len(catalog.Items); dups > 0 {
		c.logger.Debug().Int("duplicates", dups).Msg("removed duplicate catalog records")
	}
	return catalog, nil
}

// pageCount is ceil(count/pageSize), and at least one.
func pageCount(count, pageSize int) int {
	if count <= pageSize {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

func (c *Client) fetchProductsPage(ctx context.Context, offset, limit int) (*models.ProductsPage, error) {
	resp, err := c.doAuthorized(ctx, fmt.Sprintf(constants.ProductsEndpoint, offset, limit))
	if err != nil {
		return nil, fmt.Errorf("list products at offset %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return nil, &StatusError{
			Op:         fmt.Sprintf("list products at offset %d", offset),
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp),
		}
	}

	var page models.ProductsPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode products page at offset %d: %w", offset, err)
	}
	return &page, nil
}

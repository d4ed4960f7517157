package api

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/url"

	"github.com/packtdl/packt-dl/internal/constants"
	"github.com/packtdl/packt-dl/internal/models"
)

// ListFormats returns the file types a product can be downloaded as.
//
// 404 means the product has no typed files (video-only titles) and yields an
// empty list. Any other non-200 status, including a 401 that survives the
// refresh, is a *StatusError the caller may log and move past.
func (c *Client) ListFormats(ctx context.Context, id models.ProductID) ([]string, error) {
	resp, err := c.doAuthorized(ctx, fmt.Sprintf(constants.ProductTypesEndpoint, url.PathEscape(id.String())))
	if err != nil {
		return nil, fmt.Errorf("list formats for %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case nethttp.StatusOK:
	case nethttp.StatusNotFound:
		drainAndClose(resp)
		return []string{}, nil
	default:
		return nil, &StatusError{
			Op:         "list formats",
			ItemID:     id.String(),
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp),
		}
	}

	var types models.ProductTypesResponse
	if err := json.NewDecoder(resp.Body).Decode(&types); err != nil {
		return nil, fmt.Errorf("failed to decode formats for %s: %w", id, err)
	}
	if len(types.Data) == 0 || types.Data[0].FileTypes == nil {
		return []string{}, nil
	}
	return types.Data[0].FileTypes, nil
}

// GetDownloadURL resolves a short-lived signed URL for one format of a
// product. Every non-200 status is a *StatusError.
func (c *Client) GetDownloadURL(ctx context.Context, id models.ProductID, format string) (string, error) {
	path := fmt.Sprintf(constants.ProductFileEndpoint, url.PathEscape(id.String()), url.PathEscape(format))
	resp, err := c.doAuthorized(ctx, path)
	if err != nil {
		return "", fmt.Errorf("get %s URL for %s: %w", format, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		return "", &StatusError{
			Op:         "get " + format + " URL",
			ItemID:     id.String(),
			StatusCode: resp.StatusCode,
			Body:       readErrorBody(resp),
		}
	}

	var file models.FileURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return "", fmt.Errorf("failed to decode %s URL for %s: %w", format, id, err)
	}
	if file.Data == "" {
		return "", fmt.Errorf("empty %s URL for %s", format, id)
	}
	return file.Data, nil
}

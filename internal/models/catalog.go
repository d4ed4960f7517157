package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CatalogItem represents one owned product (book or video course)
type CatalogItem struct {
	ID   ProductID `json:"productId"`
	Name string    `json:"productName"`
}

// ProductID is a product identifier. The entitlements API has returned it both
// as a string and as a bare number, so both decode to the same string form.
type ProductID string

// UnmarshalJSON accepts "123", 123 and null.
func (p *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = ProductID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid product id %s: %w", data, err)
	}
	*p = ProductID(n.String())
	return nil
}

// String returns the identifier as used in URLs and file names.
func (p ProductID) String() string {
	return string(p)
}

// DownloadTarget is one item/format pair resolved to a local path
type DownloadTarget struct {
	ItemID    ProductID
	Name      string // normalized display name
	Format    string
	URL       string // signed URL, filled in right before the transfer
	LocalPath string
}

// Catalog is the de-duplicated result of paging through owned products
type Catalog struct {
	Items         []CatalogItem
	ReportedCount int // count reported by the API
	RawCount      int // records received before de-duplication
}

// TokenRequest is the body of POST /auth-v1/users/tokens
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is the response from POST /auth-v1/users/tokens
type TokenResponse struct {
	Data struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	} `json:"data"`
}

// ProductsPage is one page of GET /entitlements-v1/users/me/products
type ProductsPage struct {
	Count int           `json:"count"`
	Data  []CatalogItem `json:"data"`
}

// ProductTypesResponse is the response from GET /products-v1/products/{id}/types
type ProductTypesResponse struct {
	Data []struct {
		FileTypes []string `json:"fileTypes"`
	} `json:"data"`
}

// FileURLResponse is the response from GET /products-v1/products/{id}/files/{format}
type FileURLResponse struct {
	Data string `json:"data"`
}

package constants

import (
	"time"
)

// Storefront API
const (
	// DefaultAPIBaseURL is the Packt services host all endpoints hang off.
	DefaultAPIBaseURL = "https://services.packtpub.com"

	// AuthEndpoint issues bearer tokens for username/password credentials.
	AuthEndpoint = "/auth-v1/users/tokens"

	// ProductsEndpoint lists owned products, newest first. Format args: offset, limit.
	ProductsEndpoint = "/entitlements-v1/users/me/products?sort=createdAt:DESC&offset=%d&limit=%d"

	// ProductTypesEndpoint lists the file types of one product. Format args: product ID.
	ProductTypesEndpoint = "/products-v1/products/%s/types"

	// ProductFileEndpoint resolves a signed download URL. Format args: product ID, format.
	ProductFileEndpoint = "/products-v1/products/%s/files/%s"

	// UserAgent is sent with every API call. The storefront rejects some
	// non-browser agents.
	UserAgent = "Mozilla/5.0 (Windows NT 6.3; WOW64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/51.0.2704.103 Safari/537.36"
)

// Session lifetime
const (
	// TokenRefreshAfter - proactive re-login interval (14 minutes).
	// Tokens are observed to last ~15 minutes; refresh before the last minute.
	TokenRefreshAfter = 14 * time.Minute

	// TokenExpiryMargin - when the token carries an exp claim, refresh this long
	// before it.
	TokenExpiryMargin = 1 * time.Minute
)

// Catalog paging
const (
	// DefaultPageSize - records requested per catalog page
	DefaultPageSize = 25

	// MaxPageSize - the entitlements endpoint caps limit at 100
	MaxPageSize = 100
)

// Downloads
const (
	// DownloadChunkSize - read size while streaming a file to disk (32 KiB)
	DownloadChunkSize = 32 * 1024

	// PartialSuffix - suffix of in-progress downloads, renamed away on completion
	PartialSuffix = ".part"

	// DiskSpaceSafetyMargin - require 15% more free space than Content-Length
	DiskSpaceSafetyMargin = 1.15

	// DownloadTimeout - upper bound for a single file transfer
	DownloadTimeout = 2 * time.Hour
)

// Retry configuration
const (
	// DefaultRetries - transient-error retries for API calls and file streams
	DefaultRetries = 3

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	// Exponential backoff with jitter caps at this value
	RetryMaxDelay = 15 * time.Second
)

// Rate limiting
const (
	// APIRatePerSec - steady request rate against the storefront API
	APIRatePerSec = 4.0

	// APIBurstCapacity - requests allowed back-to-back before throttling kicks in
	APIBurstCapacity = 20.0
)

// HTTP transport timeouts
const (
	// HTTPDialTimeout - TCP connect timeout
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - TCP keep-alive period
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long idle pooled connections are kept
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - TLS handshake timeout
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - wait for 100-continue
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPResponseHeaderTimeout - API calls must start answering within this
	HTTPResponseHeaderTimeout = 60 * time.Second
)

// Default format selection
var (
	// DefaultFormats is used when --books is not given.
	DefaultFormats = []string{"pdf", "mobi", "epub", "code", "video"}

	// ArchiveFormats are served as renamed zip archives.
	ArchiveFormats = []string{"code", "video"}

	// DefaultSkipTitles - products whose name contains one of these are bypassed.
	DefaultSkipTitles = []string{"Skill Up"}
)

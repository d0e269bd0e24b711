// Package constants contains shared HTTP header names and content type
// strings used across the service.
package constants

// Header names used across handlers and middleware.
const (
	// HeaderAuthorization is the HTTP "Authorization" header name.
	HeaderAuthorization = "Authorization"

	// HeaderCacheControl is the HTTP "Cache-Control" header name.
	HeaderCacheControl = "Cache-Control"

	// HeaderContentType is the HTTP "Content-Type" header name.
	HeaderContentType = "Content-Type"

	// HeaderPragma is the HTTP "Pragma" header name.
	HeaderPragma = "Pragma"

	// HeaderReferer is the HTTP "Referer" header name.
	HeaderReferer = "Referer"

	// HeaderXRequestID is the request ID header name.
	HeaderXRequestID = "X-Request-ID"
)

// Common media types used in requests and responses.
const (
	// ContentTypeJSON represents "application/json".
	ContentTypeJSON = "application/json"

	// ContentTypeFormURLEncoded represents
	// "application/x-www-form-urlencoded".
	ContentTypeFormURLEncoded = "application/x-www-form-urlencoded"
)

// Cache directives applied to token endpoint responses per RFC 6749 §5.1.
const (
	// CacheControlNoStore disables caching of token responses.
	CacheControlNoStore = "no-store"

	// PragmaNoCache is the HTTP/1.0 companion of CacheControlNoStore.
	PragmaNoCache = "no-cache"
)

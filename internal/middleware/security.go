// Package middleware provides ambient HTTP middleware for the demo
// resource server in cmd/server, independent of credential validation.
package middleware

import "net/http"

// DefaultMaxBodySize is 1MB - used for most JSON API endpoints
const DefaultMaxBodySize = 1 * 1024 * 1024

// SecurityHeaders is middleware that adds security-related HTTP headers to all responses.
// These headers protect against common web vulnerabilities and are recommended by OWASP.
//
// Headers added:
// - X-Content-Type-Options: nosniff - Prevents MIME-type sniffing
// - X-Frame-Options: DENY - Prevents clickjacking by disabling framing
// - X-XSS-Protection: 1; mode=block - Enables browser XSS filter
// - Referrer-Policy: strict-origin-when-cross-origin
// - Permissions-Policy: camera=(), microphone=(), geolocation=()
// - Strict-Transport-Security: max-age=31536000; includeSubDomains - only when
//   the request arrived over TLS or with X-Forwarded-Proto: https
//
// Note: Content-Security-Policy is not included here as it requires
// application-specific configuration and is typically handled by a reverse
// proxy (e.g., BunkerWeb) in production deployments.
//
// Example usage:
//
//	r := chi.NewRouter()
//	r.Use(SecurityHeaders)
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME-type sniffing
		// This stops browsers from trying to guess the content type,
		// which can lead to XSS attacks if a malicious file is served
		// with an incorrect content type.
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		// DENY means the page cannot be displayed in a frame, regardless of
		// the site attempting to do so. This prevents malicious sites from
		// embedding our UI in a transparent frame to trick users.
		w.Header().Set("X-Frame-Options", "DENY")

		// Enable browser XSS filter
		// mode=block instructs the browser to block the page entirely if
		// a XSS attack is detected, rather than trying to sanitize.
		// Note: This header is deprecated in modern browsers but still
		// provides protection for older browsers.
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		// Referrer-Policy: Only send origin in cross-origin requests
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Permissions-Policy: Disable unnecessary browser features
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

		// HSTS: Enforce HTTPS when behind TLS terminator
		// Only set when request came via HTTPS to avoid breaking dev environments
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// MaxBodySize is middleware that limits the size of incoming request bodies.
// This prevents denial-of-service attacks where clients send extremely large
// requests to exhaust server memory.
//
// The middleware wraps the request body with http.MaxBytesReader, which will
// return an error if the client attempts to send more than maxBytes.
//
// Parameters:
//   - maxBytes: Maximum allowed request body size in bytes
//
// Example usage:
//
//	r := chi.NewRouter()
//	r.Use(MaxBodySize(middleware.DefaultMaxBodySize))  // 1MB for JSON endpoints
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Wrap the body with MaxBytesReader
			// This will automatically return an error if the body exceeds maxBytes
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

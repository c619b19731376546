package middleware

import (
	"net/http"
)

// DefaultMaxBodySize is 1MB.
const DefaultMaxBodySize int64 = 1 << 20

// RequestSize caps request bodies at maxBytes with http.MaxBytesReader.
// Handlers see *http.MaxBytesError when decoding an oversized body and
// answer 413. A non-positive maxBytes uses DefaultMaxBodySize.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

package middleware

import (
	"github.com/emberio/hearth/internal/observability"
)

// Trace injects trace and request IDs into every request context.
func Trace() Middleware {
	return observability.Trace()
}

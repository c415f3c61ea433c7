// Package auth supplies the Authorization header for search requests.
package auth

import (
	"context"
	"net/http"
)

// Provider injects credentials into outgoing HTTP requests.
type Provider interface {
	// Token returns the credential sent with each request.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the Authorization header on req.
	InjectHeader(ctx context.Context, req *http.Request) error
}

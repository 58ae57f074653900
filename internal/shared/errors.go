package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Request validation errors
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrInvalidRole  = fmt.Errorf("invalid role")

	// Session errors
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrVerifierMissing = fmt.Errorf("code verifier missing")
	ErrStorage         = fmt.Errorf("session storage failure")

	// Upstream errors
	ErrTokenExchange = fmt.Errorf("token exchange failed")
	ErrUpstream      = fmt.Errorf("upstream request failed")
	ErrFetchTimeout  = fmt.Errorf("catalog fetch timed out")
)

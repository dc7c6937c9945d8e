package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is shown to clients and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrUnauthorized         = errors.New("unauthorized")
	ErrNotFound             = errors.New("not found")
	ErrPaymentNotConfigured = errors.New("payment gateway not configured")
	ErrInvalidSignature     = errors.New("invalid payment signature")
	ErrMailNotConfigured    = errors.New("email service not configured")
	ErrNoReportPDF          = errors.New("reading has no report pdf")
)

// GatewayError wraps a failure of an external collaborator (payment or mail).
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (1MB).
	MaxRequestBodySize = 1 << 20

	// ForwardedForHeader carries the client address behind a reverse proxy.
	ForwardedForHeader = "X-Forwarded-For"

	// RealIPHeader is the single-address variant set by some proxies.
	RealIPHeader = "X-Real-IP"

	// MessageMissingJSON is returned for an absent or undecodable body.
	MessageMissingJSON = "Missing JSON data"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RequestError is a malformed client request. It always maps to 400.
type RequestError struct {
	Message string
	Field   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// DecodeJSON reads a size-limited JSON body into v. An empty or invalid
// body is reported as a RequestError with MessageMissingJSON.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return &RequestError{Message: MessageMissingJSON}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) > MaxRequestBodySize {
		return &RequestError{
			Message: fmt.Sprintf("Request body exceeds maximum size of %d bytes", MaxRequestBodySize),
			Field:   "body",
		}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return &RequestError{Message: MessageMissingJSON}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return &RequestError{Message: MessageMissingJSON, Field: "body"}
	}
	return nil
}

// ValidateStruct runs the validate tags of v. The first failing field is
// reported as a RequestError. Struct types may override messages by
// implementing ValidationMessage.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &RequestError{Message: err.Error()}
	}

	fe := fieldErrs[0]
	if m, ok := v.(interface {
		ValidationMessage(field, tag string) string
	}); ok {
		if msg := m.ValidationMessage(fe.Field(), fe.Tag()); msg != "" {
			return &RequestError{Message: msg, Field: fe.Field()}
		}
	}
	return &RequestError{
		Message: fmt.Sprintf("Invalid value for %s (%s)", fe.Field(), fe.Tag()),
		Field:   fe.Field(),
	}
}

// DecodeAndValidate combines DecodeJSON and ValidateStruct.
func DecodeAndValidate(r *http.Request, v any) error {
	if err := DecodeJSON(r, v); err != nil {
		return err
	}
	return ValidateStruct(v)
}

// ExtractLicenseKey returns the license key carried in header, trimmed.
func ExtractLicenseKey(r *http.Request, header string) string {
	return strings.TrimSpace(r.Header.Get(header))
}

// ClientIP returns the originating client address. The first entry of
// X-Forwarded-For wins, then X-Real-IP, then the connection address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get(ForwardedForHeader); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get(RealIPHeader)); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

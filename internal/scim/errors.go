package scim

import (
	"fmt"
	"strconv"
)

// Error is a typed protocol failure carrying its intended HTTP status. The
// dispatcher's outer trap is the only place errors are turned into wire
// documents; handlers and adapters just return them.
type Error struct {
	Status   int
	ScimType string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorResponse is the SCIM error document (RFC 7644 3.12). Status is the
// HTTP code rendered as a string, as the RFC requires.
type ErrorResponse struct {
	Schemas  []string `json:"schemas"`
	ScimType string   `json:"scimType,omitempty"`
	Detail   string   `json:"detail"`
	Status   string   `json:"status"`
}

// Document renders the error in wire form.
func (e *Error) Document() *ErrorResponse {
	return &ErrorResponse{
		Schemas:  []string{SchemaError},
		ScimType: e.ScimType,
		Detail:   e.Detail,
		Status:   strconv.Itoa(e.Status),
	}
}

// BadRequest reports malformed input: bad pagination values, unparseable
// filters, missing search schema.
func BadRequest(detail string) *Error {
	return &Error{Status: 400, ScimType: "invalidValue", Detail: detail}
}

// BadSyntax reports a request whose structure could not be parsed.
func BadSyntax(detail string) *Error {
	return &Error{Status: 400, ScimType: "invalidSyntax", Detail: detail}
}

// Unauthorized reports a missing or mismatched bearer credential.
func Unauthorized() *Error {
	return &Error{Status: 401, Detail: "Unauthorized"}
}

// NotFound reports an id that does not resolve to a resource.
func NotFound(id string) *Error {
	return &Error{Status: 404, Detail: fmt.Sprintf("Resource %s not found", id)}
}

// Integrity reports a referential violation or uniqueness conflict.
func Integrity(detail string) *Error {
	return &Error{Status: 409, ScimType: "uniqueness", Detail: detail}
}

// NotImplemented reports an endpoint or feature this deployment does not
// support.
func NotImplemented(detail string) *Error {
	return &Error{Status: 501, Detail: detail}
}

// Internal wraps an unexpected failure. The wrapped error goes to the log
// only, never onto the wire.
func Internal(err error) *Error {
	return &Error{Status: 500, Detail: "Internal server error", Err: err}
}

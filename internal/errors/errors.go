// Package errors implements the error-handling pipeline: classification of
// raw execution errors, an ordered per-error handler chain, and the terminal
// client-facing formatting step.
package errors

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Kind classifies a raw error for reporting and redaction decisions.
type Kind string

const (
	// KindGraphQL covers parse and validation violations plus errors whose
	// message was produced for the client. Always safe to show.
	KindGraphQL Kind = "graphql"
	// KindClient covers resolver errors that declare themselves client-safe.
	KindClient Kind = "client"
	// KindInternal covers everything else; the underlying message is not
	// safe to show to a client.
	KindInternal Kind = "internal"
)

// ClientAware lets resolver errors opt in to having their message and
// category shown to clients.
type ClientAware interface {
	error
	IsClientSafe() bool
	Category() string
}

// ClientError is a minimal ClientAware implementation for resolvers.
type ClientError struct {
	Msg string
	Cat string
}

func (e *ClientError) Error() string      { return e.Msg }
func (e *ClientError) IsClientSafe() bool { return true }
func (e *ClientError) Category() string {
	if e.Cat == "" {
		return string(KindClient)
	}
	return e.Cat
}

// Classify derives the Kind of a raw error. Errors produced by the GraphQL
// frontend itself (no underlying cause, or a validation rule attached) are
// client-safe; wrapped causes are internal unless they are ClientAware.
func Classify(err *gqlerror.Error) Kind {
	if err.Rule != "" || err.Err == nil {
		return KindGraphQL
	}
	if ca, ok := err.Err.(ClientAware); ok && ca.IsClientSafe() {
		return KindClient
	}
	return KindInternal
}

// Category returns the reporting category for a raw error, preferring a
// ClientAware cause's own category.
func Category(err *gqlerror.Error) string {
	if err.Err != nil {
		if ca, ok := err.Err.(ClientAware); ok && ca.IsClientSafe() {
			return ca.Category()
		}
	}
	return string(Classify(err))
}

// Located wraps err into a raw GraphQL error at the given response path. A
// *gqlerror.Error cause is kept as-is apart from filling a missing path, so
// resolver-produced GraphQL errors keep their locations and extensions.
func Located(err error, path ast.Path) *gqlerror.Error {
	if gerr, ok := err.(*gqlerror.Error); ok {
		if gerr.Path == nil {
			gerr.Path = path
		}
		return gerr
	}
	return &gqlerror.Error{
		Err:     err,
		Message: err.Error(),
		Path:    path,
	}
}

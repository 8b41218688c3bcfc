package provider

import (
	"fmt"
	"net/http"

	"github.com/chofesh/model-gateway/internal/catalog"
)

// Class determines what the router may do after a failed attempt.
type Class int

const (
	// ClassTransient failures permit falling back to the next candidate.
	ClassTransient Class = iota
	// ClassFatal failures take this descriptor out of play; the chain may
	// still advance to a different one.
	ClassFatal
	// ClassMismatch means the chosen model cannot serve the request shape.
	// The chain must stop: the requester picked this model on purpose.
	ClassMismatch
)

// Error is a classified invocation failure.
type Error struct {
	Class  Class
	Family catalog.Family
	Model  string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Model, e.Family, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func transientErr(family catalog.Family, model string, err error) *Error {
	return &Error{Class: ClassTransient, Family: family, Model: model, Err: err}
}

func fatalErr(family catalog.Family, model string, err error) *Error {
	return &Error{Class: ClassFatal, Family: family, Model: model, Err: err}
}

func mismatchErr(family catalog.Family, model string, err error) *Error {
	return &Error{Class: ClassMismatch, Family: family, Model: model, Err: err}
}

// classForStatus maps an HTTP status to a failure class. Credential
// rejections are fatal; everything else, including 429 and 5xx, is worth
// trying on another backend.
func classForStatus(status int) Class {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ClassFatal
	default:
		return ClassTransient
	}
}

package submission

import (
	"errors"
	"fmt"
)

// Error kinds. Per-item kinds are recorded in BatchResult.Errors; the fatal
// ones are returned by the operation that hit them.
var (
	ErrArchiveCorrupt    = errors.New("docmerge: archive corrupt")
	ErrFileRead          = errors.New("docmerge: file read failed")
	ErrConversion        = errors.New("docmerge: conversion failed")
	ErrEmptyBatch        = errors.New("docmerge: nothing to combine")
	ErrMalformedDocument = errors.New("docmerge: malformed document")
	ErrExcessFiles       = errors.New("docmerge: too many files for submitter")
)

// Kind is the stable, serializable name of an error kind.
type Kind string

const (
	KindArchiveCorrupt    Kind = "archive_corrupt"
	KindFileRead          Kind = "file_read"
	KindConversion        Kind = "conversion"
	KindEmptyBatch        Kind = "empty_batch"
	KindMalformedDocument Kind = "malformed_document"
	KindExcessFiles       Kind = "excess_files"
)

var kindSentinels = map[Kind]error{
	KindArchiveCorrupt:    ErrArchiveCorrupt,
	KindFileRead:          ErrFileRead,
	KindConversion:        ErrConversion,
	KindEmptyBatch:        ErrEmptyBatch,
	KindMalformedDocument: ErrMalformedDocument,
	KindExcessFiles:       ErrExcessFiles,
}

// ItemError records a non-fatal problem with one submission (or, for
// KindArchiveCorrupt, with the batch as a whole).
type ItemError struct {
	Identity string `json:"identity,omitempty"`
	Path     string `json:"path,omitempty"`
	Kind     Kind   `json:"kind"`
	Message  string `json:"message"`
}

// Error implements error so an ItemError can be logged or wrapped directly.
func (e ItemError) Error() string {
	switch {
	case e.Path != "" && e.Identity != "":
		return fmt.Sprintf("%s (%s): %s", e.Path, e.Identity, e.Message)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	case e.Identity != "":
		return fmt.Sprintf("%s: %s", e.Identity, e.Message)
	}
	return e.Message
}

// Unwrap maps the kind back to its sentinel so errors.Is works.
func (e ItemError) Unwrap() error { return kindSentinels[e.Kind] }

// NewItemError builds an ItemError whose Kind is derived from err. Unknown
// errors are classified as file read failures.
func NewItemError(identity, path string, err error) ItemError {
	return ItemError{
		Identity: identity,
		Path:     path,
		Kind:     KindOf(err),
		Message:  err.Error(),
	}
}

// KindOf returns the Kind whose sentinel err wraps.
func KindOf(err error) Kind {
	for _, k := range []Kind{
		KindArchiveCorrupt, KindConversion, KindEmptyBatch,
		KindMalformedDocument, KindExcessFiles, KindFileRead,
	} {
		if errors.Is(err, kindSentinels[k]) {
			return k
		}
	}
	return KindFileRead
}

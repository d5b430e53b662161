package engine

import (
	"fmt"

	"github.com/bianoble/pkgrelay/internal/deploy"
	"github.com/bianoble/pkgrelay/internal/registry"
)

// Error ties a failure to the operation and package it happened in.
type Error struct {
	Op      string
	Ref     string
	ChainID int64
	Err     error
	Hint    string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Ref)
	if e.ChainID != 0 {
		msg += fmt.Sprintf(" (chain %d)", e.ChainID)
	}
	msg += ": " + e.Err.Error()
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PublishResult holds the outcome of a publish or copy.
type PublishResult struct {
	// Calls are the registry writes that were issued.
	Calls []registry.PublishCall

	// Published identifies each registry entry written.
	Published []string

	// NoOp is set when the destination already pointed at the copied
	// record and no registry write was needed.
	NoOp bool

	// Copied lists every deployment URL written to the destination, in
	// traversal order.
	Copied []string
}

// Resolution is a registry lookup result.
type Resolution struct {
	Ref     string
	ChainID int64
	URL     string
	MetaURL string
}

// PruneAction is one blob considered by a prune.
type PruneAction struct {
	URL    string
	Action string // "removed", "kept", "would-remove", "too-young"
	Reason string
}

// PruneResult holds the outcome of a prune operation.
type PruneResult struct {
	Removed []PruneAction
	Kept    []PruneAction
	Errors  []error
}

// PinResult holds the outcome of copying a tree by URL.
type PinResult struct {
	// URL is the destination URL of the root record.
	URL    string
	Copied []string
}

// InspectResult describes a resolved package.
type InspectResult struct {
	Resolution
	Info *deploy.Info

	// Written lists the contract files written, relative to the
	// output directory.
	Written []string
}

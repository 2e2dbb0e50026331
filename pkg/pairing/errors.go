// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"fmt"
	"strings"
)

// RemoteQueryError is a transport or API failure while reading cluster
// state. Reads gate every mutation, so a failed read is always fatal
// for the current operation.
type RemoteQueryError struct {
	// Cluster is the resolved name (or address) of the failing side.
	Cluster string

	// Op is the read that failed (e.g. "ListClusterPairs").
	Op string

	// Wrapped is the underlying client error.
	Wrapped error
}

// Error returns a formatted message naming the cluster and operation.
func (e *RemoteQueryError) Error() string {
	return fmt.Sprintf("%s on cluster %s: %v", e.Op, e.Cluster, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e *RemoteQueryError) Unwrap() error {
	return e.Wrapped
}

func remoteQueryErr(cluster, op string, err error) *RemoteQueryError {
	return &RemoteQueryError{Cluster: cluster, Op: op, Wrapped: err}
}

// PreconditionError reports an invariant that must hold before any
// mutation: exclusivity, access mode, size equality, clean unpaired
// sources, uniform modes. Nothing has been changed when it is returned.
type PreconditionError struct {
	// Op is the operation whose precondition failed.
	Op string

	// Reason describes the unmet invariant in operator terms.
	Reason string
}

// Error returns the operation and the unmet invariant.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: precondition not met: %s", e.Op, e.Reason)
}

func preconditionErr(op, format string, args ...any) *PreconditionError {
	return &PreconditionError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// BoundsError reports a resize outside the allowed growth window or
// above the volume size ceiling. Nothing has been changed when it is
// returned.
type BoundsError struct {
	// Reason describes the violated bound.
	Reason string

	// Delta is the requested growth in bytes (after rounding).
	Delta int64

	// Current is the current volume size in bytes.
	Current int64

	// Limit is the bound that was exceeded, in bytes.
	Limit int64
}

// Error returns the violated bound with the relevant byte counts.
func (e *BoundsError) Error() string {
	return fmt.Sprintf("resize out of bounds: %s (delta=%d current=%d limit=%d)",
		e.Reason, e.Delta, e.Current, e.Limit)
}

// PartialFailureError reports a multi-step or batch operation that
// failed after some steps already committed. Committed steps are never
// rolled back; Remediation tells the operator how to finish or repair
// by hand.
type PartialFailureError struct {
	// Op is the operation that partially completed.
	Op string

	// Completed describes the steps that did commit.
	Completed []string

	// Remediation is the manual repair guidance.
	Remediation string

	// Wrapped is the error that stopped the operation.
	Wrapped error
}

// Error returns the failure, the committed steps, and the remediation.
func (e *PartialFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed partway: %v.", e.Op, e.Wrapped)
	if len(e.Completed) > 0 {
		fmt.Fprintf(&b, " Already committed (not rolled back): %s.", strings.Join(e.Completed, "; "))
	}
	if e.Remediation != "" {
		fmt.Fprintf(&b, " Manual remediation: %s", e.Remediation)
	}
	return b.String()
}

// Unwrap returns the error that stopped the operation.
func (e *PartialFailureError) Unwrap() error {
	return e.Wrapped
}

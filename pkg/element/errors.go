// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package element

import (
	"errors"
	"fmt"
)

// APIError is an error reported by the Element API itself, as opposed
// to a transport failure. It carries the fault name and code from the
// JSON-RPC error object.
//
// # Example
//
//	var apiErr *element.APIError
//	if errors.As(err, &apiErr) {
//	    fmt.Println(apiErr.Name) // "xVolumeIDDoesNotExist"
//	}
type APIError struct {
	// Method is the API method that failed (e.g. "ModifyVolumePair").
	Method string

	// Code is the numeric fault code from the error object.
	Code int

	// Name is the symbolic fault name (e.g. "xPairingAlreadyExists").
	Name string

	// Message is the human-readable fault description.
	Message string
}

// Error returns a formatted message including method, name, and code.
func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s (%d): %s", e.Method, e.Name, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: api error %d: %s", e.Method, e.Code, e.Message)
}

// TransportError is a failure to reach the cluster or to decode its
// response: connection refused, TLS failure, timeout, malformed body.
type TransportError struct {
	// Method is the API method being invoked.
	Method string

	// Target is the management endpoint address.
	Target string

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns a formatted message including method and target.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s against %s: %v", e.Method, e.Target, e.Wrapped)
}

// Unwrap returns the underlying error so errors.Is works through the
// chain (e.g. context.Canceled).
func (e *TransportError) Unwrap() error {
	return e.Wrapped
}

// IsAPIError reports whether err chains to an Element API fault.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

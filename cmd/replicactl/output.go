// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
)

// Exit codes. Errors inside a command group exit with the group's code;
// the handful of setup failures have their own codes so scripts can
// tell "bad input" from "cluster said no".
const (
	ExitSuccess     = 0
	ExitConnect     = 2 // building a cluster client failed
	ExitClusterInfo = 3 // a client connected but GetClusterInfo failed
	ExitInput       = 4 // malformed --data payload
	ExitCluster     = 100
	ExitVolume      = 200
	ExitSite        = 300
)

// OutputJSON renders a report on stdout: indented on a terminal,
// compact when piped.
func OutputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// exitWith prints err and terminates with the group's exit code, or
// with ExitInput when the failure was a malformed payload. Typed errors
// carry their own remediation text; nothing is added here.
func exitWith(groupCode int, err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var inputErr *InputFormatError
	if errors.As(err, &inputErr) {
		os.Exit(ExitInput)
	}
	os.Exit(groupCode)
}

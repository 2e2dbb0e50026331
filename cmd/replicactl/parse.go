// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/replicactl/pkg/pairing"
)

// InputFormatError reports a malformed --data payload. The payload
// grammar is semicolon-separated fields of comma-separated lists; every
// parser rejects extra fields rather than ignoring them.
type InputFormatError struct {
	// Flag is the action the payload was given to.
	Flag string

	// Data is the raw payload as received.
	Data string

	// Reason says what the parser expected.
	Reason string
}

func (e *InputFormatError) Error() string {
	return fmt.Sprintf("--data %q for %s: %s", e.Data, e.Flag, e.Reason)
}

func inputErr(flag, data, reason string) *InputFormatError {
	return &InputFormatError{Flag: flag, Data: data, Reason: reason}
}

// parseIDList parses a comma-separated list of positive volume IDs.
func parseIDList(flag, data string) ([]int, error) {
	parts := strings.Split(data, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || id <= 0 {
			return nil, inputErr(flag, data, fmt.Sprintf("%q is not a positive volume ID", p))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseOptionalIDList is parseIDList for payloads where the whole list
// may be omitted, meaning "all".
func parseOptionalIDList(flag, data string) ([]int, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	return parseIDList(flag, data)
}

// parseVolumePairs parses "src,dst;src,dst;..." into pair requests.
// Example: "111,555;112,600".
func parseVolumePairs(flag, data string) ([]pairing.VolumePairRequest, error) {
	if strings.TrimSpace(data) == "" {
		return nil, inputErr(flag, data, `expected one or more "srcID,dstID" pairs separated by ";"`)
	}
	groups := strings.Split(data, ";")
	pairs := make([]pairing.VolumePairRequest, 0, len(groups))
	for _, g := range groups {
		p, err := parseSinglePair(flag, g)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// parseSinglePair parses one "srcID,dstID" element.
func parseSinglePair(flag, data string) (pairing.VolumePairRequest, error) {
	parts := strings.Split(data, ",")
	if len(parts) != 2 {
		return pairing.VolumePairRequest{}, inputErr(flag, data, `expected exactly "srcID,dstID"`)
	}
	src, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	dst, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || src <= 0 || dst <= 0 {
		return pairing.VolumePairRequest{}, inputErr(flag, data, "volume IDs must be positive integers")
	}
	return pairing.VolumePairRequest{SourceVolumeID: src, TargetVolumeID: dst}, nil
}

// parseResizeData parses "deltaBytes;srcID,dstID".
// Example: "1073741824;100,200" adds 1 GiB to the pair 100/200.
func parseResizeData(flag, data string) (pairing.ResizeRequest, error) {
	fields := strings.Split(data, ";")
	if len(fields) != 2 {
		return pairing.ResizeRequest{}, inputErr(flag, data, `expected "deltaBytes;srcID,dstID"`)
	}
	delta, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil || delta <= 0 {
		return pairing.ResizeRequest{}, inputErr(flag, data, "delta must be a positive byte count")
	}
	pair, err := parseSinglePair(flag, fields[1])
	if err != nil {
		return pairing.ResizeRequest{}, err
	}
	return pairing.ResizeRequest{
		DeltaBytes:     delta,
		SourceVolumeID: pair.SourceVolumeID,
		TargetVolumeID: pair.TargetVolumeID,
	}, nil
}

// parsePrimeData parses "srcAccountID,dstAccountID;volID,volID,...".
// Example: "1,22;444,555".
func parsePrimeData(flag, data string) (pairing.PrimeRequest, error) {
	fields := strings.Split(data, ";")
	if len(fields) != 2 {
		return pairing.PrimeRequest{}, inputErr(flag, data, `expected "srcAccountID,dstAccountID;volID,volID,..."`)
	}
	accounts := strings.Split(fields[0], ",")
	if len(accounts) != 2 {
		return pairing.PrimeRequest{}, inputErr(flag, data, "expected exactly two account IDs before the semicolon")
	}
	srcAcc, err1 := strconv.Atoi(strings.TrimSpace(accounts[0]))
	dstAcc, err2 := strconv.Atoi(strings.TrimSpace(accounts[1]))
	if err1 != nil || err2 != nil || srcAcc <= 0 || dstAcc <= 0 {
		return pairing.PrimeRequest{}, inputErr(flag, data, "account IDs must be positive integers")
	}
	ids, err := parseIDList(flag, fields[1])
	if err != nil {
		return pairing.PrimeRequest{}, err
	}
	return pairing.PrimeRequest{
		SourceAccountID: srcAcc,
		TargetAccountID: dstAcc,
		VolumeIDs:       ids,
	}, nil
}

// parseModeData parses "Mode" or "Mode;volID,volID,...". An omitted ID
// list means every currently paired volume.
func parseModeData(flag, data string) (pairing.ReplicationMode, []int, error) {
	fields := strings.SplitN(data, ";", 2)
	mode, err := pairing.ParseReplicationMode(strings.TrimSpace(fields[0]))
	if err != nil {
		return "", nil, inputErr(flag, data, err.Error())
	}
	if len(fields) == 1 {
		return mode, nil, nil
	}
	ids, err := parseOptionalIDList(flag, fields[1])
	if err != nil {
		return "", nil, err
	}
	return mode, ids, nil
}

// parseStateData parses "pause" / "resume", optionally with an ID list
// like parseModeData.
func parseStateData(flag, data string) (pairing.ReplicationState, []int, error) {
	fields := strings.SplitN(data, ";", 2)
	state, err := pairing.ParseReplicationState(strings.TrimSpace(fields[0]))
	if err != nil {
		return "", nil, inputErr(flag, data, err.Error())
	}
	if len(fields) == 1 {
		return state, nil, nil
	}
	ids, err := parseOptionalIDList(flag, fields[1])
	if err != nil {
		return "", nil, err
	}
	return state, ids, nil
}

// Snapshot retention bounds in hours.
const (
	minRetentionHours = 1
	maxRetentionHours = 720
)

// parseSnapshotData parses "retentionHours;name" with a default of
// "168;long168h-snap". Either field may be given alone.
func parseSnapshotData(flag, data string) (int, string, error) {
	if strings.TrimSpace(data) == "" {
		return pairing.DefaultSnapshotRetentionHours, pairing.DefaultSnapshotName, nil
	}
	fields := strings.Split(data, ";")
	if len(fields) != 2 {
		return 0, "", inputErr(flag, data, `expected "retentionHours;snapshotName"`)
	}
	hours, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || hours < minRetentionHours || hours > maxRetentionHours {
		return 0, "", inputErr(flag, data,
			fmt.Sprintf("retention must be %d-%d hours", minRetentionHours, maxRetentionHours))
	}
	name := strings.TrimSpace(fields[1])
	if name == "" || len(name) > 16 {
		return 0, "", inputErr(flag, data, "snapshot name must be 1-16 characters")
	}
	return hours, name, nil
}

// parseAccessData parses a single access mode payload.
func parseAccessData(flag, data string) (string, error) {
	mode, err := pairing.ParseAccessMode(strings.TrimSpace(data))
	if err != nil {
		return "", inputErr(flag, data, err.Error())
	}
	return mode, nil
}

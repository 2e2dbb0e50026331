// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/replicactl/pkg/element"
)

// BulkModifyThreshold is the volume count at which bulk access-mode
// changes switch to per-volume pause/flip/resume loops. Large bulk
// flips are an operational risk, not a technical limit; the same
// threshold governs reversal, priming, and site access changes.
const BulkModifyThreshold = 500

// Size bounds for paired-volume growth.
const (
	// SizeQuantum is the alignment every growth delta is rounded down
	// to before use.
	SizeQuantum = 4096

	// MaxGrowthBytes is the largest single growth step (1 TiB).
	MaxGrowthBytes = int64(1) << 40

	// MaxVolumeSizeBytes is the SolidFire volume size ceiling (16 TiB).
	MaxVolumeSizeBytes = int64(16) << 40
)

// API is the Element client capability the core consumes. It is
// satisfied by *element.Client; tests substitute a fake.
type API interface {
	GetClusterInfo(ctx context.Context) (*element.ClusterInfo, error)
	ListClusterPairs(ctx context.Context) ([]element.ClusterPair, error)
	StartClusterPairing(ctx context.Context) (string, error)
	CompleteClusterPairing(ctx context.Context, key string) (int, error)
	RemoveClusterPair(ctx context.Context, clusterPairID int) error
	ListVolumes(ctx context.Context, filter element.VolumeFilter) ([]element.Volume, error)
	ListVolumesForAccount(ctx context.Context, accountID int) ([]element.Volume, error)
	GetAccountByID(ctx context.Context, accountID int) (*element.Account, error)
	CreateVolume(ctx context.Context, req element.CreateVolumeRequest) (*element.Volume, error)
	ModifyVolume(ctx context.Context, volumeID int, mod element.VolumeModification) error
	ModifyVolumes(ctx context.Context, volumeIDs []int, mod element.VolumeModification) error
	StartVolumePairing(ctx context.Context, volumeID int) (string, error)
	CompleteVolumePairing(ctx context.Context, volumeID int, key string) error
	RemoveVolumePair(ctx context.Context, volumeID int) error
	ModifyVolumePair(ctx context.Context, volumeID int, mod element.PairModification) error
	CreateSnapshot(ctx context.Context, req element.CreateSnapshotRequest) (*element.Snapshot, error)
}

// Endpoint is one cluster's resolved session: management address,
// resolved cluster name, and the API handle. It is built once at
// startup and passed explicitly into every operation; there is no
// ambient current-source/current-destination state.
type Endpoint struct {
	ClusterName string
	MVIP        string
	API         API
}

// ReplicationMode is the replication type of a volume pair.
type ReplicationMode string

// Valid replication modes.
const (
	Sync          ReplicationMode = element.ModeSync
	Async         ReplicationMode = element.ModeAsync
	SnapshotsOnly ReplicationMode = element.ModeSnapshotsOnly
)

// ParseReplicationMode normalizes user input to a ReplicationMode.
func ParseReplicationMode(s string) (ReplicationMode, error) {
	switch strings.ToLower(s) {
	case "sync":
		return Sync, nil
	case "async":
		return Async, nil
	case "snapshotsonly":
		return SnapshotsOnly, nil
	default:
		return "", fmt.Errorf("replication mode must be one of Sync, Async, SnapshotsOnly, not %q", s)
	}
}

// ReplicationState is the manual pause toggle of a volume pair.
type ReplicationState string

// Valid replication states.
const (
	Pause  ReplicationState = "pause"
	Resume ReplicationState = "resume"
)

// ParseReplicationState normalizes user input to a ReplicationState.
func ParseReplicationState(s string) (ReplicationState, error) {
	switch strings.ToLower(s) {
	case "pause", "paused", "pausedmanual":
		return Pause, nil
	case "resume", "resumed":
		return Resume, nil
	default:
		return "", fmt.Errorf("replication state must be pause or resume, not %q", s)
	}
}

// ParseAccessMode normalizes user input to an Element access mode.
func ParseAccessMode(s string) (string, error) {
	switch strings.ToLower(s) {
	case "readwrite":
		return element.AccessReadWrite, nil
	case "replicationtarget":
		return element.AccessReplicationTarget, nil
	default:
		return "", fmt.Errorf("access mode must be readWrite or replicationTarget, not %q", s)
	}
}

// PairedVolume is one mutually paired volume as seen from the local
// (source) side of a catalog query.
type PairedVolume struct {
	ClusterPairID    int             `json:"clusterPairID"`
	LocalVolumeID    int             `json:"localVolumeID"`
	LocalVolumeName  string          `json:"localVolumeName"`
	RemoteVolumeID   int             `json:"remoteVolumeID"`
	RemoteVolumeName string          `json:"remoteVolumeName"`
	ReplicationMode  ReplicationMode `json:"replicationMode"`
	State            string          `json:"state"`
	PauseLimit       int64           `json:"pauseLimit"`
	SnapshotState    string          `json:"snapshotState"`
	VolumePairUUID   string          `json:"volumePairUUID"`
}

// VolumePairRequest names one source/target volume ID pair for pairing
// or unpairing.
type VolumePairRequest struct {
	SourceVolumeID int `json:"sourceVolumeID" validate:"gt=0"`
	TargetVolumeID int `json:"targetVolumeID" validate:"gt=0"`
}

func (r VolumePairRequest) String() string {
	return fmt.Sprintf("%d,%d", r.SourceVolumeID, r.TargetVolumeID)
}

// localVolumeIDs extracts the local side of a catalog listing.
func localVolumeIDs(paired []PairedVolume) []int {
	ids := make([]int, 0, len(paired))
	for _, p := range paired {
		ids = append(ids, p.LocalVolumeID)
	}
	return ids
}

// remoteVolumeIDs extracts the remote side of a catalog listing.
func remoteVolumeIDs(paired []PairedVolume) []int {
	ids := make([]int, 0, len(paired))
	for _, p := range paired {
		ids = append(ids, p.RemoteVolumeID)
	}
	return ids
}

// uniformAccess returns the single access mode shared by all volumes,
// or "" when the set is empty or mixed.
func uniformAccess(vols []element.Volume) string {
	if len(vols) == 0 {
		return ""
	}
	mode := vols[0].Access
	for _, v := range vols[1:] {
		if v.Access != mode {
			return ""
		}
	}
	return mode
}

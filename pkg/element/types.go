// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package element

// Volume access modes as reported and accepted by the Element API.
const (
	// AccessReadWrite marks the active, client-facing side of a
	// replication relationship.
	AccessReadWrite = "readWrite"

	// AccessReplicationTarget marks the passive side that receives
	// replicated data and rejects client writes.
	AccessReplicationTarget = "replicationTarget"
)

// Replication modes for a volume pair.
const (
	ModeSync          = "Sync"
	ModeAsync         = "Async"
	ModeSnapshotsOnly = "SnapshotsOnly"
)

// VolumeStatusActive is the volumeStatus filter value for volumes that
// are neither deleted nor purged.
const VolumeStatusActive = "active"

// ClusterInfo is the subset of GetClusterInfo this tool consumes.
type ClusterInfo struct {
	Name string `json:"name"`
	MVIP string `json:"mvip"`
	UUID string `json:"uuid"`
}

// ClusterPair is one cluster-level pairing record as reported by
// ListClusterPairs. Records are always fetched fresh; they are never
// valid across operations because the peer cluster can change them
// out-of-band.
type ClusterPair struct {
	ClusterPairID   int    `json:"clusterPairID"`
	ClusterPairUUID string `json:"clusterPairUUID"`
	ClusterName     string `json:"clusterName"`
	MVIP            string `json:"mvip"`
	Status          string `json:"status"`
	Latency         int    `json:"latency"`
	Version         string `json:"version,omitempty"`
}

// QoS holds per-volume quality of service settings.
type QoS struct {
	MinIOPS   int64 `json:"minIOPS"`
	MaxIOPS   int64 `json:"maxIOPS"`
	BurstIOPS int64 `json:"burstIOPS"`
}

// SnapshotReplication reports the snapshot replication leg of a pair.
type SnapshotReplication struct {
	State string `json:"state"`
}

// RemoteReplication reports the data replication leg of a pair.
type RemoteReplication struct {
	Mode                string              `json:"mode"`
	State               string              `json:"state"`
	PauseLimit          int64               `json:"pauseLimit"`
	SnapshotReplication SnapshotReplication `json:"snapshotReplication"`
}

// VolumePair is one volume-level pairing record embedded in a Volume.
// A healthy volume carries exactly one; more than one means the volume
// participates in multiple relationships and is treated as suspicious.
type VolumePair struct {
	ClusterPairID     int               `json:"clusterPairID"`
	RemoteVolumeID    int               `json:"remoteVolumeID"`
	RemoteVolumeName  string            `json:"remoteVolumeName"`
	VolumePairUUID    string            `json:"volumePairUUID"`
	RemoteReplication RemoteReplication `json:"remoteReplication"`
}

// Volume is the subset of an Element volume record this tool consumes.
// QoS and QoSPolicyID are mutually exclusive on the wire: a volume
// either carries its own QoS curve or references a shared policy.
type Volume struct {
	VolumeID    int          `json:"volumeID"`
	Name        string       `json:"name"`
	AccountID   int          `json:"accountID"`
	Access      string       `json:"access"`
	Status      string       `json:"status"`
	TotalSize   int64        `json:"totalSize"`
	BlockSize   int64        `json:"blockSize"`
	Enable512e  bool         `json:"enable512e"`
	FifoSize    int64        `json:"fifoSize"`
	MinFifoSize int64        `json:"minFifoSize"`
	DeleteTime  string       `json:"deleteTime,omitempty"`
	PurgeTime   string       `json:"purgeTime,omitempty"`
	QoS         *QoS         `json:"qos,omitempty"`
	QoSPolicyID *int         `json:"qosPolicyID,omitempty"`
	VolumePairs []VolumePair `json:"volumePairs,omitempty"`
}

// Paired reports whether the volume carries at least one pairing record.
func (v *Volume) Paired() bool {
	return len(v.VolumePairs) > 0
}

// Account is the subset of an Element account record this tool consumes.
type Account struct {
	AccountID int    `json:"accountID"`
	Username  string `json:"username"`
	Status    string `json:"status"`
}

// Snapshot is the subset of a snapshot record this tool consumes.
type Snapshot struct {
	SnapshotID     int    `json:"snapshotID"`
	VolumeID       int    `json:"volumeID"`
	Name           string `json:"name"`
	ExpirationTime string `json:"expirationTime"`
}

// VolumeFilter narrows a ListVolumes call. Nil pointer fields are
// omitted from the request so the cluster applies its defaults.
type VolumeFilter struct {
	VolumeIDs             []int  `json:"volumeIDs,omitempty"`
	IsPaired              *bool  `json:"isPaired,omitempty"`
	VolumeStatus          string `json:"volumeStatus,omitempty"`
	IncludeVirtualVolumes *bool  `json:"includeVirtualVolumes,omitempty"`
}

// PairedActiveFilter returns the filter every catalog query uses:
// paired, active, non-virtual volumes, optionally narrowed to ids.
func PairedActiveFilter(ids []int) VolumeFilter {
	paired := true
	virtual := false
	return VolumeFilter{
		VolumeIDs:             ids,
		IsPaired:              &paired,
		VolumeStatus:          VolumeStatusActive,
		IncludeVirtualVolumes: &virtual,
	}
}

// UnpairedActiveFilter returns the filter pairing validation uses for
// candidate volumes, which must not yet carry any pairing record.
func UnpairedActiveFilter(ids []int) VolumeFilter {
	paired := false
	virtual := false
	return VolumeFilter{
		VolumeIDs:             ids,
		IsPaired:              &paired,
		VolumeStatus:          VolumeStatusActive,
		IncludeVirtualVolumes: &virtual,
	}
}

// VolumeModification carries the modifiable volume attributes this tool
// changes. Nil fields are left untouched on the cluster.
type VolumeModification struct {
	Access    *string `json:"access,omitempty"`
	TotalSize *int64  `json:"totalSize,omitempty"`
}

// PairModification carries the modifiable volume-pair attributes. Nil
// fields are left untouched.
type PairModification struct {
	Mode         *string `json:"mode,omitempty"`
	PausedManual *bool   `json:"pausedManual,omitempty"`
}

// CreateVolumeRequest describes a volume to create during destination
// priming. Exactly one of QoS or QoSPolicyID is set, mirroring the
// template volume.
type CreateVolumeRequest struct {
	Name        string `json:"name"`
	AccountID   int    `json:"accountID"`
	TotalSize   int64  `json:"totalSize"`
	Enable512e  bool   `json:"enable512e"`
	FifoSize    int64  `json:"fifoSize,omitempty"`
	MinFifoSize int64  `json:"minFifoSize,omitempty"`
	QoS         *QoS   `json:"qos,omitempty"`
	QoSPolicyID *int   `json:"qosPolicyID,omitempty"`
}

// CreateSnapshotRequest describes a snapshot of a single volume.
// Retention is encoded "HH:MM:SS" as the API expects.
type CreateSnapshotRequest struct {
	VolumeID  int    `json:"volumeID"`
	Name      string `json:"name,omitempty"`
	Retention string `json:"retention,omitempty"`
}

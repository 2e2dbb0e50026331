// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"context"

	"github.com/AleutianAI/replicactl/pkg/element"
	"github.com/AleutianAI/replicactl/pkg/logging"
)

// Catalog enumerates paired volumes and detects pairing integrity
// violations and one-sided mismatches. It makes no mutations.
type Catalog struct {
	Log       *logging.Logger
	Inspector *Inspector
}

// NewCatalog returns a Catalog sharing the given inspector.
func NewCatalog(log *logging.Logger, inspector *Inspector) *Catalog {
	if log == nil {
		log = logging.Default()
	}
	if inspector == nil {
		inspector = NewInspector(log)
	}
	return &Catalog{Log: log, Inspector: inspector}
}

// ListPairedVolumes returns the source side's active, paired,
// non-virtual volumes whose single pairing record matches the currently
// exclusive cluster pair, optionally restricted to ids.
//
// Per-volume handling:
//   - zero pairing records: skipped (the filter should prevent this,
//     but clusters have been seen returning such rows)
//   - more than one record: excluded and flagged suspicious
//   - a record naming a foreign cluster pair: fatal, because the volume
//     is paired with a third cluster and every assumption about the
//     src/dst relationship is off
func (c *Catalog) ListPairedVolumes(ctx context.Context, src, dst *Endpoint, ids []int) ([]PairedVolume, error) {
	excl, err := c.Inspector.ExclusiveMutualPairing(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	if !excl.Exclusive() {
		return nil, preconditionErr("list paired volumes",
			"clusters %s and %s are not in an exclusive mutual pairing relationship; use cluster --list to view current status",
			src.ClusterName, dst.ClusterName)
	}
	localPairID := excl.Source[0].ClusterPairID

	vols, err := src.API.ListVolumes(ctx, element.PairedActiveFilter(ids))
	if err != nil {
		return nil, remoteQueryErr(src.ClusterName, "ListVolumes", err)
	}

	paired := make([]PairedVolume, 0, len(vols))
	for _, v := range vols {
		switch {
		case len(v.VolumePairs) == 0:
			c.Log.Debug("volume carries no pairing records, skipping",
				"cluster", src.ClusterName, "volume_id", v.VolumeID, "volume_name", v.Name)
			continue
		case len(v.VolumePairs) > 1:
			c.Log.Warn("suspicious volume paired with more than one volume, excluding",
				"cluster", src.ClusterName, "volume_id", v.VolumeID,
				"volume_name", v.Name, "pair_count", len(v.VolumePairs))
			continue
		}

		pair := v.VolumePairs[0]
		if pair.ClusterPairID != localPairID {
			return nil, preconditionErr("list paired volumes",
				"volume %d (%s) on cluster %s is paired through foreign cluster pair ID %d, expected %d; the volume is paired with a third cluster",
				v.VolumeID, v.Name, src.ClusterName, pair.ClusterPairID, localPairID)
		}

		paired = append(paired, PairedVolume{
			ClusterPairID:    pair.ClusterPairID,
			LocalVolumeID:    v.VolumeID,
			LocalVolumeName:  v.Name,
			RemoteVolumeID:   pair.RemoteVolumeID,
			RemoteVolumeName: pair.RemoteVolumeName,
			ReplicationMode:  ReplicationMode(pair.RemoteReplication.Mode),
			State:            pair.RemoteReplication.State,
			PauseLimit:       pair.RemoteReplication.PauseLimit,
			SnapshotState:    pair.RemoteReplication.SnapshotReplication.State,
			VolumePairUUID:   pair.VolumePairUUID,
		})
	}

	c.Log.Info("paired volumes listed",
		"cluster", src.ClusterName, "count", len(paired), "filter_ids", len(ids))
	return paired, nil
}

// SidePairRecord is the per-volume detail a mismatch report carries for
// one side. QoS and QoSPolicyID always come from the volume itself.
type SidePairRecord struct {
	AccountID        int           `json:"accountID"`
	VolumeID         int           `json:"volumeID"`
	Name             string        `json:"name"`
	DeleteTime       string        `json:"deleteTime,omitempty"`
	PurgeTime        string        `json:"purgeTime,omitempty"`
	TotalSize        int64         `json:"totalSize"`
	Enable512e       bool          `json:"enable512e"`
	QoS              *element.QoS  `json:"qos,omitempty"`
	QoSPolicyID      *int          `json:"qosPolicyID,omitempty"`
	VolumePairUUID   string        `json:"volumePairUUID"`
	RemoteVolumeID   int           `json:"remoteVolumeID"`
	RemoteVolumeName string        `json:"remoteVolumeName"`
}

// Mismatch is one volume whose pairing is visible on only one side.
type Mismatch struct {
	// Cluster is the side where the one-sided record was found.
	Cluster string `json:"cluster"`

	// PeerCluster is the side where the reciprocal entry is missing.
	PeerCluster string `json:"peerCluster"`

	VolumeID       int    `json:"volumeID"`
	RemoteVolumeID int    `json:"remoteVolumeID"`
	VolumePairUUID string `json:"volumePairUUID"`
}

// MismatchReport is the result of FindMismatches.
type MismatchReport struct {
	Source      []SidePairRecord `json:"source"`
	Destination []SidePairRecord `json:"destination"`
	Mismatches  []Mismatch       `json:"mismatches"`
}

// FindMismatches independently lists the paired volumes on both sides,
// builds a local↔remote volume ID reciprocity map, and reports every
// entry whose reciprocal is absent on the other side. This catches
// one-sided pairings; a foreign cluster pair ID (wrong cluster, not
// one-sided) is the catalog listing's fatal case, not a mismatch.
func (c *Catalog) FindMismatches(ctx context.Context, src, dst *Endpoint) (*MismatchReport, error) {
	paired := true
	filter := element.VolumeFilter{IsPaired: &paired}

	srcVols, err := src.API.ListVolumes(ctx, filter)
	if err != nil {
		return nil, remoteQueryErr(src.ClusterName, "ListVolumes", err)
	}
	dstVols, err := dst.API.ListVolumes(ctx, filter)
	if err != nil {
		return nil, remoteQueryErr(dst.ClusterName, "ListVolumes", err)
	}

	srcRecords := sideRecords(srcVols)
	dstRecords := sideRecords(dstVols)

	if len(srcRecords) != len(dstRecords) {
		c.Log.Warn("sides report different numbers of volume pairings",
			"src_cluster", src.ClusterName, "src_count", len(srcRecords),
			"dst_cluster", dst.ClusterName, "dst_count", len(dstRecords))
	}
	c.warnMultipleAccounts(src.ClusterName, srcVols)
	c.warnMultipleAccounts(dst.ClusterName, dstVols)

	report := &MismatchReport{
		Source:      srcRecords,
		Destination: dstRecords,
	}

	dstTuples := tupleSet(dstRecords)
	for _, r := range srcRecords {
		// The reciprocal of (local, remote) at SRC is (remote, local) at DST.
		if !dstTuples[idTuple{r.RemoteVolumeID, r.VolumeID}] {
			c.Log.Warn("volume is paired on one side only",
				"cluster", src.ClusterName, "volume_id", r.VolumeID,
				"volume_pair_uuid", r.VolumePairUUID,
				"missing_remote_volume_id", r.RemoteVolumeID,
				"missing_on", dst.ClusterName)
			report.Mismatches = append(report.Mismatches, Mismatch{
				Cluster:        src.ClusterName,
				PeerCluster:    dst.ClusterName,
				VolumeID:       r.VolumeID,
				RemoteVolumeID: r.RemoteVolumeID,
				VolumePairUUID: r.VolumePairUUID,
			})
		}
	}
	srcTuples := tupleSet(srcRecords)
	for _, r := range dstRecords {
		if !srcTuples[idTuple{r.RemoteVolumeID, r.VolumeID}] {
			c.Log.Warn("volume is paired on one side only",
				"cluster", dst.ClusterName, "volume_id", r.VolumeID,
				"volume_pair_uuid", r.VolumePairUUID,
				"missing_remote_volume_id", r.RemoteVolumeID,
				"missing_on", src.ClusterName)
			report.Mismatches = append(report.Mismatches, Mismatch{
				Cluster:        dst.ClusterName,
				PeerCluster:    src.ClusterName,
				VolumeID:       r.VolumeID,
				RemoteVolumeID: r.RemoteVolumeID,
				VolumePairUUID: r.VolumePairUUID,
			})
		}
	}

	return report, nil
}

type idTuple struct {
	local, remote int
}

func tupleSet(records []SidePairRecord) map[idTuple]bool {
	set := make(map[idTuple]bool, len(records))
	for _, r := range records {
		set[idTuple{r.VolumeID, r.RemoteVolumeID}] = true
	}
	return set
}

// sideRecords projects paired volumes into report records. Volumes
// without a pairing entry are dropped; the filter asked for paired
// volumes only, so such a row is a cluster-side anomaly, not ours to
// interpret.
func sideRecords(vols []element.Volume) []SidePairRecord {
	records := make([]SidePairRecord, 0, len(vols))
	for _, v := range vols {
		if len(v.VolumePairs) == 0 {
			continue
		}
		pair := v.VolumePairs[0]
		records = append(records, SidePairRecord{
			AccountID:        v.AccountID,
			VolumeID:         v.VolumeID,
			Name:             v.Name,
			DeleteTime:       v.DeleteTime,
			PurgeTime:        v.PurgeTime,
			TotalSize:        v.TotalSize,
			Enable512e:       v.Enable512e,
			QoS:              v.QoS,
			QoSPolicyID:      v.QoSPolicyID,
			VolumePairUUID:   pair.VolumePairUUID,
			RemoteVolumeID:   pair.RemoteVolumeID,
			RemoteVolumeName: pair.RemoteVolumeName,
		})
	}
	return records
}

func (c *Catalog) warnMultipleAccounts(cluster string, vols []element.Volume) {
	accounts := make(map[int]bool)
	for _, v := range vols {
		accounts[v.AccountID] = true
	}
	if len(accounts) > 1 {
		c.Log.Warn("paired volumes reference more than one account",
			"cluster", cluster, "account_count", len(accounts))
	}
}

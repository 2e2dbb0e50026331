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

	"github.com/AleutianAI/replicactl/pkg/element"
	"github.com/AleutianAI/replicactl/pkg/logging"
)

// Lifecycle creates and removes cluster- and volume-level pairing
// relationships.
type Lifecycle struct {
	Log       *logging.Logger
	Inspector *Inspector
	Catalog   *Catalog

	// DryRun makes UnpairVolumes report the intended removal without
	// mutating. Pairing actions have no dry-run mode: validation runs
	// entirely before the first mutation anyway.
	DryRun bool
}

// NewLifecycle returns a Lifecycle sharing the given inspector and
// catalog.
func NewLifecycle(log *logging.Logger, inspector *Inspector, catalog *Catalog) *Lifecycle {
	if log == nil {
		log = logging.Default()
	}
	if inspector == nil {
		inspector = NewInspector(log)
	}
	if catalog == nil {
		catalog = NewCatalog(log, inspector)
	}
	return &Lifecycle{Log: log, Inspector: inspector, Catalog: catalog}
}

// PairClusters establishes the cluster-level trust relationship.
// Precondition: neither side holds any pairing record, with any
// cluster; multi-relationships are not supported. A pairing key is
// generated at the source and consumed at the destination, then the
// result is re-verified through the exclusive mutual pairing gate.
func (m *Lifecycle) PairClusters(ctx context.Context, src, dst *Endpoint) (*PairingSnapshot, error) {
	snap, err := m.Inspector.Snapshot(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	if !snap.Empty() {
		return nil, preconditionErr("pair clusters",
			"clusters are already paired, paired with another cluster, or in an incomplete pairing state (pair counts %s=%d %s=%d); use cluster --list to view current status",
			src.ClusterName, len(snap.Source), dst.ClusterName, len(snap.Destination))
	}

	key, err := src.API.StartClusterPairing(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting cluster pairing on %s: %w", src.ClusterName, err)
	}
	pairID, err := dst.API.CompleteClusterPairing(ctx, key)
	if err != nil {
		return nil, &PartialFailureError{
			Op:          "pair clusters",
			Completed:   []string{fmt.Sprintf("pairing key generated on %s", src.ClusterName)},
			Remediation: "the unconsumed key ages out on its own; re-run cluster --pair once both clusters are reachable",
			Wrapped:     err,
		}
	}
	m.Log.Info("cluster pairing complete",
		"src_cluster", src.ClusterName, "dst_cluster", dst.ClusterName, "cluster_pair_id", pairID)

	verified, err := m.Inspector.ExclusiveMutualPairing(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	if !verified.Exclusive() {
		return nil, preconditionErr("pair clusters",
			"post-pairing verification failed: clusters do not report an exclusive mutual relationship")
	}
	return verified, nil
}

// UnpairClusters removes the cluster-level relationship. Preconditions:
// an exclusive mutual pairing exists, and zero volume-level pairings
// remain — removing the cluster pair first would orphan them. The
// record is removed from both sides independently; if the source
// removal succeeds and the destination one fails, the destination keeps
// a dangling record that must be repaired by hand.
func (m *Lifecycle) UnpairClusters(ctx context.Context, src, dst *Endpoint) (*PairingSnapshot, error) {
	excl, err := m.Inspector.ExclusiveMutualPairing(ctx, src, dst)
	if err != nil {
		return nil, err
	}
	if !excl.Exclusive() {
		return nil, preconditionErr("unpair clusters",
			"clusters are not paired or are in an ambiguous pairing state; use cluster --list to view current status")
	}

	paired, err := m.Catalog.ListPairedVolumes(ctx, src, dst, nil)
	if err != nil {
		return nil, err
	}
	if len(paired) > 0 {
		return nil, preconditionErr("unpair clusters",
			"%d paired volumes exist; unpair all volumes first, otherwise their pairings would be orphaned", len(paired))
	}

	if err := src.API.RemoveClusterPair(ctx, excl.Source[0].ClusterPairID); err != nil {
		return nil, fmt.Errorf("removing cluster pair %d on %s: %w",
			excl.Source[0].ClusterPairID, src.ClusterName, err)
	}
	m.Log.Info("cluster pair removed", "cluster", src.ClusterName,
		"cluster_pair_id", excl.Source[0].ClusterPairID)

	if err := dst.API.RemoveClusterPair(ctx, excl.Destination[0].ClusterPairID); err != nil {
		return nil, &PartialFailureError{
			Op:          "unpair clusters",
			Completed:   []string{fmt.Sprintf("cluster pair removed on %s", src.ClusterName)},
			Remediation: fmt.Sprintf("remove cluster pair ID %d on %s by hand; until then that side holds a dangling record", excl.Destination[0].ClusterPairID, dst.ClusterName),
			Wrapped:     err,
		}
	}
	m.Log.Info("cluster pair removed", "cluster", dst.ClusterName,
		"cluster_pair_id", excl.Destination[0].ClusterPairID)

	return m.Inspector.Snapshot(ctx, src, dst)
}

// pairProperty is one of the volume attributes that must match exactly
// between the two candidates of a pair.
type pairProperty struct {
	name string
	get  func(*element.Volume) any
}

var pairProperties = []pairProperty{
	{"blockSize", func(v *element.Volume) any { return v.BlockSize }},
	{"enable512e", func(v *element.Volume) any { return v.Enable512e }},
	{"status", func(v *element.Volume) any { return v.Status }},
	{"totalSize", func(v *element.Volume) any { return v.TotalSize }},
}

// PairVolumes pairs each requested source/target volume for
// replication: validate-all-then-commit-all. Every candidate pair is
// validated first (source readWrite, target replicationTarget, and
// exact equality of blockSize, enable512e, status and totalSize); a
// single mismatch aborts the entire batch before any pairing key is
// exchanged. Only after the whole batch validates are keys exchanged,
// one pair at a time; a failure mid-exchange leaves the earlier pairs
// committed.
func (m *Lifecycle) PairVolumes(ctx context.Context, src, dst *Endpoint, pairs []VolumePairRequest) error {
	if len(pairs) == 0 {
		return preconditionErr("pair volumes", "no volume pairs requested")
	}

	excl, err := m.Inspector.ExclusiveMutualPairing(ctx, src, dst)
	if err != nil {
		return err
	}
	if !excl.Exclusive() {
		return preconditionErr("pair volumes",
			"clusters %s and %s are not in an exclusive mutual pairing relationship",
			src.ClusterName, dst.ClusterName)
	}

	m.warnExistingDirection(ctx, src, dst)

	// Validation pass. No mutation happens until every pair checks out.
	for _, p := range pairs {
		srcVol, err := fetchCandidate(ctx, src, p.SourceVolumeID)
		if err != nil {
			return err
		}
		dstVol, err := fetchCandidate(ctx, dst, p.TargetVolumeID)
		if err != nil {
			return err
		}

		if srcVol.Access != element.AccessReadWrite || dstVol.Access != element.AccessReplicationTarget {
			return preconditionErr("pair volumes",
				"access modes not suitable for pair %s: source %d is %s, target %d is %s; replication runs readWrite -> replicationTarget",
				p, srcVol.VolumeID, srcVol.Access, dstVol.VolumeID, dstVol.Access)
		}
		for _, prop := range pairProperties {
			sv, dv := prop.get(srcVol), prop.get(dstVol)
			if sv != dv {
				return preconditionErr("pair volumes",
					"property %s mismatch for pair %s: source=%v target=%v; ensure consistency before pairing, no keys were exchanged",
					prop.name, p, sv, dv)
			}
		}
		m.Log.Info("volume pair candidate validated",
			"source_volume_id", p.SourceVolumeID, "target_volume_id", p.TargetVolumeID)
	}

	// Commit pass.
	var committed []string
	for _, p := range pairs {
		key, err := src.API.StartVolumePairing(ctx, p.SourceVolumeID)
		if err != nil {
			return m.pairCommitFailure(p, committed, err)
		}
		if err := dst.API.CompleteVolumePairing(ctx, p.TargetVolumeID, key); err != nil {
			return m.pairCommitFailure(p, committed, err)
		}
		committed = append(committed, p.String())
		m.Log.Info("volume pair established",
			"source_volume_id", p.SourceVolumeID, "target_volume_id", p.TargetVolumeID)
	}
	return nil
}

func (m *Lifecycle) pairCommitFailure(failed VolumePairRequest, committed []string, err error) error {
	return &PartialFailureError{
		Op:          "pair volumes",
		Completed:   committed,
		Remediation: fmt.Sprintf("pair %s and any remaining pairs must be completed or cleaned up by hand; use volume --list and volume --mismatched to inspect", failed),
		Wrapped:     err,
	}
}

// warnExistingDirection logs when already-paired source volumes are not
// uniformly readWrite, which usually means src and dst are swapped.
// Informational only; the per-pair validation decides.
func (m *Lifecycle) warnExistingDirection(ctx context.Context, src, dst *Endpoint) {
	paired, err := m.Catalog.ListPairedVolumes(ctx, src, dst, nil)
	if err != nil || len(paired) == 0 {
		return
	}
	vols, err := src.API.ListVolumes(ctx, element.PairedActiveFilter(localVolumeIDs(paired)))
	if err != nil {
		return
	}
	if mode := uniformAccess(vols); mode != element.AccessReadWrite {
		m.Log.Warn("existing paired volumes on the source side are not uniformly readWrite; check that src and dst are not swapped",
			"cluster", src.ClusterName, "observed_mode", mode)
	}
}

// fetchCandidate loads one unpaired active volume, failing when the
// volume is missing or already paired.
func fetchCandidate(ctx context.Context, ep *Endpoint, volumeID int) (*element.Volume, error) {
	vols, err := ep.API.ListVolumes(ctx, element.UnpairedActiveFilter([]int{volumeID}))
	if err != nil {
		return nil, remoteQueryErr(ep.ClusterName, "ListVolumes", err)
	}
	if len(vols) == 0 {
		return nil, preconditionErr("pair volumes",
			"volume %d not found on cluster %s as an active unpaired volume; use volume --list to verify IDs and that src/dst are correct",
			volumeID, ep.ClusterName)
	}
	return &vols[0], nil
}

// UnpairReport describes a volume unpair action, intended or performed.
type UnpairReport struct {
	DryRun         bool `json:"dryRun"`
	SourceVolumeID int  `json:"sourceVolumeID"`
	TargetVolumeID int  `json:"targetVolumeID"`
}

// UnpairVolumes removes one volume pairing. The pair must appear
// exactly once in the current catalog view. In dry-run mode the
// intended removal is reported without mutating; live mode removes the
// pairing record from both sides independently, with no atomicity
// across the two calls.
func (m *Lifecycle) UnpairVolumes(ctx context.Context, src, dst *Endpoint, pair VolumePairRequest) (*UnpairReport, error) {
	paired, err := m.Catalog.ListPairedVolumes(ctx, src, dst, []int{pair.SourceVolumeID})
	if err != nil {
		return nil, err
	}
	matches := 0
	for _, p := range paired {
		if p.LocalVolumeID == pair.SourceVolumeID && p.RemoteVolumeID == pair.TargetVolumeID {
			matches++
		}
	}
	if matches != 1 {
		return nil, preconditionErr("unpair volumes",
			"pair %s appears %d times in the current catalog view, expected exactly once; use volume --list to verify, including src and dst settings",
			pair, matches)
	}

	report := &UnpairReport{
		DryRun:         m.DryRun,
		SourceVolumeID: pair.SourceVolumeID,
		TargetVolumeID: pair.TargetVolumeID,
	}
	if m.DryRun {
		m.Log.Info("dry run: volume pair would be removed",
			"source_volume_id", pair.SourceVolumeID, "target_volume_id", pair.TargetVolumeID)
		return report, nil
	}

	if err := src.API.RemoveVolumePair(ctx, pair.SourceVolumeID); err != nil {
		return nil, fmt.Errorf("removing volume pair on %s volume %d: %w",
			src.ClusterName, pair.SourceVolumeID, err)
	}
	if err := dst.API.RemoveVolumePair(ctx, pair.TargetVolumeID); err != nil {
		return nil, &PartialFailureError{
			Op:          "unpair volumes",
			Completed:   []string{fmt.Sprintf("pairing record removed on %s volume %d", src.ClusterName, pair.SourceVolumeID)},
			Remediation: fmt.Sprintf("remove the pairing record of volume %d on %s by hand; volume --mismatched will show the one-sided remainder", pair.TargetVolumeID, dst.ClusterName),
			Wrapped:     err,
		}
	}
	m.Log.Info("volume pair removed",
		"source_volume_id", pair.SourceVolumeID, "target_volume_id", pair.TargetVolumeID)
	return report, nil
}

// DetachSite unilaterally removes the source side's cluster pair
// record, for taking over when the destination cluster is unreachable.
// There is no way to re-attach: the destination keeps broken cluster-
// and volume-level records that must be removed and re-created.
func (m *Lifecycle) DetachSite(ctx context.Context, src, dst *Endpoint) error {
	pairs, err := src.API.ListClusterPairs(ctx)
	if err != nil {
		return remoteQueryErr(src.ClusterName, "ListClusterPairs", err)
	}
	if len(pairs) != 1 {
		return preconditionErr("detach site",
			"cluster %s reports %d pairing records, expected exactly one", src.ClusterName, len(pairs))
	}
	if pairs[0].ClusterName != dst.ClusterName {
		return preconditionErr("detach site",
			"the pairing record on %s names cluster %q, not the expected %q",
			src.ClusterName, pairs[0].ClusterName, dst.ClusterName)
	}

	m.Log.Warn("detaching site: removing the cluster pair on the source side only; this cannot be re-attached",
		"src_cluster", src.ClusterName, "dst_cluster", dst.ClusterName,
		"cluster_pair_id", pairs[0].ClusterPairID)

	if err := src.API.RemoveClusterPair(ctx, pairs[0].ClusterPairID); err != nil {
		return fmt.Errorf("removing cluster pair %d on %s: %w", pairs[0].ClusterPairID, src.ClusterName, err)
	}
	m.Log.Info("site detached; the destination keeps broken pairing records until repaired by hand",
		"dst_cluster", dst.ClusterName)
	return nil
}

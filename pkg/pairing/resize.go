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

// Resizer grows paired volumes through a pause→resize→resume
// choreography. Resizing during active replication risks corrupting
// in-flight transfer state, so replication is always manually paused on
// the readWrite side first. A failure between the two resize calls
// leaves asymmetric sizes in place; the error spells out the manual
// repair, and nothing is rolled back.
type Resizer struct {
	Log     *logging.Logger
	Catalog *Catalog
}

// NewResizer returns a Resizer sharing the catalog.
func NewResizer(log *logging.Logger, catalog *Catalog) *Resizer {
	if log == nil {
		log = logging.Default()
	}
	if catalog == nil {
		catalog = NewCatalog(log, nil)
	}
	return &Resizer{Log: log, Catalog: catalog}
}

// ResizeRequest asks to grow one source/target volume pair by
// DeltaBytes. The delta is rounded down to a SizeQuantum multiple
// before any bound is checked.
type ResizeRequest struct {
	DeltaBytes     int64 `json:"deltaBytes" validate:"gt=0"`
	SourceVolumeID int   `json:"sourceVolumeID" validate:"gt=0"`
	TargetVolumeID int   `json:"targetVolumeID" validate:"gt=0"`
}

// ResizedVolume is one side of a resize report, re-fetched after the
// choreography finished.
type ResizedVolume struct {
	VolumeID       int    `json:"volumeID"`
	Name           string `json:"name"`
	TotalSize      int64  `json:"totalSize"`
	Access         string `json:"access"`
	State          string `json:"state,omitempty"`
	RemoteVolumeID int    `json:"remoteVolumeID"`
}

// ResizeReport is the before/after outcome of a resize choreography.
type ResizeReport struct {
	PreviousSize int64         `json:"previousSize"`
	NewSize      int64         `json:"newSize"`
	Resumed      bool          `json:"resumed"`
	Source       ResizedVolume `json:"source"`
	Target       ResizedVolume `json:"target"`
}

// RoundDelta rounds a growth delta down to the nearest SizeQuantum
// multiple.
func RoundDelta(delta int64) int64 {
	return delta - delta%SizeQuantum
}

// Grow increases both volumes of a pair by the requested delta.
//
// Phases:
//  1. Validate: both volumes exist, identical current sizes, delta
//     within bounds, roles consistent (source readWrite and paired with
//     the named target in replicationTarget mode).
//  2. Pause replication manually on the source.
//  3. Resize the target first, then the source. Target-grown-but-
//     source-failed is a documented intermediate state.
//  4. Resume only if post-resize roles are still consistent; resuming
//     with inconsistent roles could start replication in the wrong
//     direction.
//
// The final step re-fetches both volumes and fails if the actual sizes
// do not match the expectation. No retry.
func (r *Resizer) Grow(ctx context.Context, src, dst *Endpoint, req ResizeRequest) (*ResizeReport, error) {
	delta := RoundDelta(req.DeltaBytes)
	if delta <= 0 {
		return nil, &BoundsError{
			Reason:  "growth delta must be positive after rounding down to the 4096-byte quantum",
			Delta:   delta,
			Current: 0,
			Limit:   SizeQuantum,
		}
	}

	srcVol, dstVol, err := r.fetchPairSides(ctx, src, dst, req.SourceVolumeID, req.TargetVolumeID)
	if err != nil {
		return nil, err
	}

	if srcVol.TotalSize != dstVol.TotalSize {
		return nil, preconditionErr("resize paired volumes",
			"source volume %d (%d bytes) and target volume %d (%d bytes) are not the same size; use --upsize-remote to let the target catch up first",
			srcVol.VolumeID, srcVol.TotalSize, dstVol.VolumeID, dstVol.TotalSize)
	}
	if err := checkGrowthBounds(delta, srcVol.TotalSize); err != nil {
		return nil, err
	}
	newSize := srcVol.TotalSize + delta

	if err := requireForwardRoles(srcVol, dstVol, req.TargetVolumeID); err != nil {
		return nil, err
	}

	if err := r.setManualPause(ctx, src, srcVol.VolumeID, true); err != nil {
		return nil, err
	}

	// Target first: a target smaller than the source blocks replication,
	// the reverse does not.
	if err := dst.API.ModifyVolume(ctx, dstVol.VolumeID, element.VolumeModification{TotalSize: &newSize}); err != nil {
		return nil, &PartialFailureError{
			Op:          "resize paired volumes",
			Completed:   []string{fmt.Sprintf("replication paused on %s volume %d", src.ClusterName, srcVol.VolumeID)},
			Remediation: fmt.Sprintf("resize target volume %d on %s to %d bytes by hand, then resize the source and resume replication; volume --mismatched shows the current state", dstVol.VolumeID, dst.ClusterName, newSize),
			Wrapped:     err,
		}
	}
	r.Log.Info("target volume resized",
		"cluster", dst.ClusterName, "volume_id", dstVol.VolumeID, "total_size", newSize)

	if err := src.API.ModifyVolume(ctx, srcVol.VolumeID, element.VolumeModification{TotalSize: &newSize}); err != nil {
		return nil, &PartialFailureError{
			Op:        "resize paired volumes",
			Completed: []string{fmt.Sprintf("replication paused and target volume %d grown to %d bytes", dstVol.VolumeID, newSize)},
			Remediation: fmt.Sprintf("resize source volume %d on %s to %d bytes by hand and resume replication; until then the pair has asymmetric sizes and replication stays paused", srcVol.VolumeID, src.ClusterName, newSize),
			Wrapped:     err,
		}
	}
	r.Log.Info("source volume resized",
		"cluster", src.ClusterName, "volume_id", srcVol.VolumeID, "total_size", newSize)

	resumed, err := r.resumeIfConsistent(ctx, src, srcVol, dstVol)
	if err != nil {
		return nil, err
	}

	report, err := r.verify(ctx, src, dst, req.SourceVolumeID, req.TargetVolumeID, newSize)
	if err != nil {
		return nil, err
	}
	report.PreviousSize = srcVol.TotalSize
	report.Resumed = resumed
	return report, nil
}

// UpsizeRemote grows only the target volume to match the source. The
// usual cause of the size gap is a CSI provisioner that grows the
// source and ignores the replication target; this lets the target catch
// up so replication can continue. The target must be strictly smaller
// than the source; the volumes are mismatched to begin with, so no
// further pairing consistency is demanded.
func (r *Resizer) UpsizeRemote(ctx context.Context, src, dst *Endpoint, sourceVolumeID, targetVolumeID int) (*ResizeReport, error) {
	srcVol, dstVol, err := r.fetchPairSides(ctx, src, dst, sourceVolumeID, targetVolumeID)
	if err != nil {
		return nil, err
	}

	if dstVol.TotalSize >= srcVol.TotalSize {
		return nil, preconditionErr("upsize remote volume",
			"target volume %d (%d bytes) is not strictly smaller than source volume %d (%d bytes); nothing to catch up",
			dstVol.VolumeID, dstVol.TotalSize, srcVol.VolumeID, srcVol.TotalSize)
	}
	if srcVol.TotalSize > MaxVolumeSizeBytes {
		return nil, &BoundsError{
			Reason:  "source size exceeds the volume size ceiling",
			Delta:   srcVol.TotalSize - dstVol.TotalSize,
			Current: dstVol.TotalSize,
			Limit:   MaxVolumeSizeBytes,
		}
	}
	newSize := srcVol.TotalSize

	if err := r.setManualPause(ctx, src, srcVol.VolumeID, true); err != nil {
		return nil, err
	}

	if err := dst.API.ModifyVolume(ctx, dstVol.VolumeID, element.VolumeModification{TotalSize: &newSize}); err != nil {
		return nil, &PartialFailureError{
			Op:          "upsize remote volume",
			Completed:   []string{fmt.Sprintf("replication paused on %s volume %d", src.ClusterName, srcVol.VolumeID)},
			Remediation: fmt.Sprintf("resize target volume %d on %s to %d bytes by hand and resume replication", dstVol.VolumeID, dst.ClusterName, newSize),
			Wrapped:     err,
		}
	}
	r.Log.Info("target volume resized to source size",
		"cluster", dst.ClusterName, "volume_id", dstVol.VolumeID, "total_size", newSize)

	resumed, err := r.resumeIfConsistent(ctx, src, srcVol, dstVol)
	if err != nil {
		return nil, err
	}

	report, err := r.verify(ctx, src, dst, sourceVolumeID, targetVolumeID, newSize)
	if err != nil {
		return nil, err
	}
	report.PreviousSize = dstVol.TotalSize
	report.Resumed = resumed
	return report, nil
}

// checkGrowthBounds enforces the growth window: the delta must stay
// strictly below twice the current size and at or below 1 TiB, and the
// resulting size must stay at or below the 16 TiB ceiling. The window
// exists to catch unit mistakes (bytes vs GiB) before they hit a live
// pair.
func checkGrowthBounds(delta, current int64) error {
	if delta >= 2*current {
		return &BoundsError{
			Reason:  "growth must stay strictly below twice the current size",
			Delta:   delta,
			Current: current,
			Limit:   2 * current,
		}
	}
	if delta > MaxGrowthBytes {
		return &BoundsError{
			Reason:  "growth is capped at 1 TiB per step",
			Delta:   delta,
			Current: current,
			Limit:   MaxGrowthBytes,
		}
	}
	if current+delta > MaxVolumeSizeBytes {
		return &BoundsError{
			Reason:  "resulting size would exceed the 16 TiB volume ceiling",
			Delta:   delta,
			Current: current,
			Limit:   MaxVolumeSizeBytes,
		}
	}
	return nil
}

// requireForwardRoles verifies the pair replicates source→target:
// source readWrite, paired with exactly the named target, target in
// replicationTarget mode.
func requireForwardRoles(srcVol, dstVol *element.Volume, wantTargetID int) error {
	if srcVol.Access != element.AccessReadWrite {
		return preconditionErr("resize paired volumes",
			"source volume %d is %s, not readWrite", srcVol.VolumeID, srcVol.Access)
	}
	if len(srcVol.VolumePairs) == 0 || srcVol.VolumePairs[0].RemoteVolumeID != wantTargetID {
		return preconditionErr("resize paired volumes",
			"source volume %d is not paired with target volume %d", srcVol.VolumeID, wantTargetID)
	}
	if dstVol.Access != element.AccessReplicationTarget {
		return preconditionErr("resize paired volumes",
			"target volume %d is %s, not replicationTarget", dstVol.VolumeID, dstVol.Access)
	}
	return nil
}

// fetchPairSides loads the two named volumes as active paired volumes,
// one query per side.
func (r *Resizer) fetchPairSides(ctx context.Context, src, dst *Endpoint, sourceID, targetID int) (*element.Volume, *element.Volume, error) {
	srcVols, err := src.API.ListVolumes(ctx, element.PairedActiveFilter([]int{sourceID}))
	if err != nil {
		return nil, nil, remoteQueryErr(src.ClusterName, "ListVolumes", err)
	}
	dstVols, err := dst.API.ListVolumes(ctx, element.PairedActiveFilter([]int{targetID}))
	if err != nil {
		return nil, nil, remoteQueryErr(dst.ClusterName, "ListVolumes", err)
	}
	if len(srcVols) == 0 || len(dstVols) == 0 {
		return nil, nil, preconditionErr("resize paired volumes",
			"volume %d and/or %d not found as active paired volumes on %s/%s respectively",
			sourceID, targetID, src.ClusterName, dst.ClusterName)
	}
	return &srcVols[0], &dstVols[0], nil
}

func (r *Resizer) setManualPause(ctx context.Context, src *Endpoint, volumeID int, paused bool) error {
	if err := src.API.ModifyVolumePair(ctx, volumeID, element.PairModification{PausedManual: &paused}); err != nil {
		return fmt.Errorf("setting manual pause=%t on %s volume %d: %w", paused, src.ClusterName, volumeID, err)
	}
	r.Log.Info("manual pause flag set", "cluster", src.ClusterName, "volume_id", volumeID, "paused", paused)
	return nil
}

// resumeIfConsistent clears the manual pause only when the pre-resize
// roles were source readWrite and target replicationTarget. With any
// other combination the resume is skipped and warned: resuming there
// could start replication in the wrong direction.
func (r *Resizer) resumeIfConsistent(ctx context.Context, src *Endpoint, srcVol, dstVol *element.Volume) (bool, error) {
	if srcVol.Access != element.AccessReadWrite || dstVol.Access != element.AccessReplicationTarget {
		r.Log.Warn("skipping resume: volume roles are not consistent for forward replication",
			"source_volume_id", srcVol.VolumeID, "source_access", srcVol.Access,
			"target_volume_id", dstVol.VolumeID, "target_access", dstVol.Access)
		return false, nil
	}
	paused := false
	if err := src.API.ModifyVolumePair(ctx, srcVol.VolumeID, element.PairModification{PausedManual: &paused}); err != nil {
		return false, &PartialFailureError{
			Op:          "resize paired volumes",
			Completed:   []string{"volumes resized"},
			Remediation: fmt.Sprintf("the volumes are resized but replication is still paused; resume volume %d on %s by hand", srcVol.VolumeID, src.ClusterName),
			Wrapped:     err,
		}
	}
	r.Log.Info("replication resumed", "cluster", src.ClusterName, "volume_id", srcVol.VolumeID)
	return true, nil
}

// verify re-fetches both sides and checks the actual sizes against the
// expectation. A mismatch is an error with no retry.
func (r *Resizer) verify(ctx context.Context, src, dst *Endpoint, sourceID, targetID int, wantSize int64) (*ResizeReport, error) {
	srcVol, dstVol, err := r.fetchPairSides(ctx, src, dst, sourceID, targetID)
	if err != nil {
		return nil, err
	}

	report := &ResizeReport{
		NewSize: wantSize,
		Source:  resizedVolume(srcVol),
		Target:  resizedVolume(dstVol),
	}
	if srcVol.TotalSize != dstVol.TotalSize || dstVol.TotalSize != wantSize {
		return nil, &PartialFailureError{
			Op: "resize paired volumes",
			Completed: []string{fmt.Sprintf("resize calls issued; observed sizes source=%d target=%d, expected %d",
				srcVol.TotalSize, dstVol.TotalSize, wantSize)},
			Remediation: "use volume --mismatched to find what happened and align the sizes by hand",
			Wrapped:     fmt.Errorf("post-resize verification found unexpected sizes"),
		}
	}
	r.Log.Info("resize verified",
		"source_volume_id", srcVol.VolumeID, "target_volume_id", dstVol.VolumeID,
		"total_size", wantSize, "total_size_gib", float64(wantSize)/(1<<30))
	return report, nil
}

func resizedVolume(v *element.Volume) ResizedVolume {
	rv := ResizedVolume{
		VolumeID:  v.VolumeID,
		Name:      v.Name,
		TotalSize: v.TotalSize,
		Access:    v.Access,
	}
	if len(v.VolumePairs) > 0 {
		rv.RemoteVolumeID = v.VolumePairs[0].RemoteVolumeID
		rv.State = v.VolumePairs[0].RemoteReplication.State
	}
	return rv
}

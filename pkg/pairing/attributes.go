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

// Attributes changes replication mode, pause state, and access mode of
// paired volumes on the source side.
type Attributes struct {
	Log     *logging.Logger
	Catalog *Catalog

	// DryRun reports intended changes without mutating.
	DryRun bool

	// BulkThreshold overrides BulkModifyThreshold when positive.
	// SetSiteAccess switches from one bulk call to a per-volume loop at
	// this count.
	BulkThreshold int
}

// NewAttributes returns an Attributes controller sharing the catalog.
func NewAttributes(log *logging.Logger, catalog *Catalog) *Attributes {
	if log == nil {
		log = logging.Default()
	}
	if catalog == nil {
		catalog = NewCatalog(log, nil)
	}
	return &Attributes{Log: log, Catalog: catalog}
}

func (a *Attributes) bulkThreshold() int {
	if a.BulkThreshold > 0 {
		return a.BulkThreshold
	}
	return BulkModifyThreshold
}

// AttributeReport describes an attribute change, intended or performed.
type AttributeReport struct {
	DryRun    bool   `json:"dryRun"`
	Change    string `json:"change"`
	VolumeIDs []int  `json:"volumeIDs"`
}

// resolveTargets maps a requested volume ID set (empty = all currently
// paired) to the source-side IDs it covers, then re-fetches those
// volumes and requires every one to be readWrite: replication
// attributes are changed on the active side only.
func (a *Attributes) resolveTargets(ctx context.Context, src, dst *Endpoint, op string, requested []int) ([]int, error) {
	paired, err := a.Catalog.ListPairedVolumes(ctx, src, dst, nil)
	if err != nil {
		return nil, err
	}
	if len(paired) == 0 {
		return nil, preconditionErr(op, "no paired volumes found")
	}

	var targets []int
	if len(requested) == 0 {
		targets = localVolumeIDs(paired)
		a.Log.Info("no volume IDs provided; all paired volumes are targeted",
			"op", op, "count", len(targets))
	} else {
		pairedSet := make(map[int]bool, len(paired))
		for _, p := range paired {
			pairedSet[p.LocalVolumeID] = true
		}
		for _, id := range requested {
			if !pairedSet[id] {
				return nil, preconditionErr(op,
					"volume %d is not in the list of currently paired volumes on %s; check the site and the paired volume IDs",
					id, src.ClusterName)
			}
			targets = append(targets, id)
		}
	}

	vols, err := src.API.ListVolumes(ctx, element.PairedActiveFilter(targets))
	if err != nil {
		return nil, remoteQueryErr(src.ClusterName, "ListVolumes", err)
	}
	if len(vols) == 0 {
		return nil, preconditionErr(op, "target volumes not found on %s; use volume --list to verify", src.ClusterName)
	}
	for _, v := range vols {
		if v.Access != element.AccessReadWrite {
			return nil, preconditionErr(op,
				"volume %d on %s is %s, not readWrite; replication attributes change only on the side where replication originates — maybe src and dst are swapped",
				v.VolumeID, src.ClusterName, v.Access)
		}
	}
	return targets, nil
}

// SetMode switches the replication mode of the targeted pairs (empty
// set = all currently paired volumes). Live mode applies the change per
// volume, sequentially, fail-fast: the first failure halts the rest of
// the batch.
func (a *Attributes) SetMode(ctx context.Context, src, dst *Endpoint, mode ReplicationMode, volumeIDs []int) (*AttributeReport, error) {
	targets, err := a.resolveTargets(ctx, src, dst, "set replication mode", volumeIDs)
	if err != nil {
		return nil, err
	}

	report := &AttributeReport{
		DryRun:    a.DryRun,
		Change:    fmt.Sprintf("replication mode -> %s", mode),
		VolumeIDs: targets,
	}
	if a.DryRun {
		a.Log.Info("dry run: replication mode would be changed",
			"mode", string(mode), "volume_ids", targets)
		return report, nil
	}

	modeStr := string(mode)
	var committed []string
	for _, id := range targets {
		err := src.API.ModifyVolumePair(ctx, id, element.PairModification{Mode: &modeStr})
		if err != nil {
			return nil, &PartialFailureError{
				Op:          "set replication mode",
				Completed:   committed,
				Remediation: fmt.Sprintf("volume %d and the remaining targets keep their previous mode; re-run with an explicit volume ID list after fixing the cause", id),
				Wrapped:     err,
			}
		}
		committed = append(committed, fmt.Sprintf("volume %d -> %s", id, mode))
		a.Log.Info("replication mode set", "volume_id", id, "mode", modeStr)
	}
	return report, nil
}

// SetState pauses or resumes replication of the targeted pairs by
// toggling the manual-pause flag, with the same resolution, dry-run,
// and fail-fast semantics as SetMode.
func (a *Attributes) SetState(ctx context.Context, src, dst *Endpoint, state ReplicationState, volumeIDs []int) (*AttributeReport, error) {
	targets, err := a.resolveTargets(ctx, src, dst, "set replication state", volumeIDs)
	if err != nil {
		return nil, err
	}

	report := &AttributeReport{
		DryRun:    a.DryRun,
		Change:    fmt.Sprintf("replication state -> %s", state),
		VolumeIDs: targets,
	}
	if a.DryRun {
		a.Log.Info("dry run: replication state would be changed",
			"state", string(state), "volume_ids", targets)
		return report, nil
	}

	paused := state == Pause
	var committed []string
	for _, id := range targets {
		err := src.API.ModifyVolumePair(ctx, id, element.PairModification{PausedManual: &paused})
		if err != nil {
			return nil, &PartialFailureError{
				Op:          "set replication state",
				Completed:   committed,
				Remediation: fmt.Sprintf("volume %d and the remaining targets keep their previous state; re-run with an explicit volume ID list after fixing the cause", id),
				Wrapped:     err,
			}
		}
		committed = append(committed, fmt.Sprintf("volume %d -> %s", id, state))
		a.Log.Info("replication state set", "volume_id", id, "state", string(state))
	}
	return report, nil
}

// SetSiteAccess unilaterally flips the access mode of every paired
// volume on the source side, making no change on the destination. This
// can stop or interrupt replication in either direction; use the
// reversal choreography to flip both sides consistently. Below the bulk
// threshold one bulk call is issued; at or above it, volumes are
// modified one by one, fail-fast.
func (a *Attributes) SetSiteAccess(ctx context.Context, src, dst *Endpoint, mode string) (*AttributeReport, error) {
	paired, err := a.Catalog.ListPairedVolumes(ctx, src, dst, nil)
	if err != nil {
		return nil, err
	}
	if len(paired) == 0 {
		return nil, preconditionErr("set site access", "no paired volumes found")
	}
	targets := localVolumeIDs(paired)

	report := &AttributeReport{
		DryRun:    a.DryRun,
		Change:    fmt.Sprintf("access -> %s on %s only", mode, src.ClusterName),
		VolumeIDs: targets,
	}
	if a.DryRun {
		a.Log.Info("dry run: site access mode would be changed",
			"cluster", src.ClusterName, "mode", mode, "volume_ids", targets)
		return report, nil
	}

	a.Log.Warn("changing access mode on one side only; this creates a mode mismatch with the peer until remediated",
		"cluster", src.ClusterName, "mode", mode, "count", len(targets))

	if len(targets) < a.bulkThreshold() {
		if err := src.API.ModifyVolumes(ctx, targets, element.VolumeModification{Access: &mode}); err != nil {
			return nil, fmt.Errorf("bulk access change on %s: %w", src.ClusterName, err)
		}
		a.Log.Info("access mode set in bulk", "cluster", src.ClusterName, "count", len(targets))
		return report, nil
	}

	var committed []string
	for _, id := range targets {
		if err := src.API.ModifyVolume(ctx, id, element.VolumeModification{Access: &mode}); err != nil {
			return nil, &PartialFailureError{
				Op:          "set site access",
				Completed:   committed,
				Remediation: "the remaining volumes keep their previous access mode; inspect with volume --list and re-run",
				Wrapped:     err,
			}
		}
		committed = append(committed, fmt.Sprintf("volume %d -> %s", id, mode))
		a.Log.Info("access mode set", "cluster", src.ClusterName, "volume_id", id, "mode", mode)
	}
	return report, nil
}

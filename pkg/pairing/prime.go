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
	"github.com/AleutianAI/replicactl/pkg/logging"
)

// Primer clones a set of unpaired source volumes onto the destination
// cluster so the copies can serve as replication targets. Creation is
// strictly sequential; a mid-run failure reports every volume already
// created and creates nothing further. Created volumes are never
// deleted by this tool.
type Primer struct {
	Log *logging.Logger

	// BulkThreshold overrides BulkModifyThreshold when positive.
	BulkThreshold int
}

// NewPrimer returns a Primer.
func NewPrimer(log *logging.Logger) *Primer {
	if log == nil {
		log = logging.Default()
	}
	return &Primer{Log: log}
}

func (p *Primer) bulkThreshold() int {
	if p.BulkThreshold > 0 {
		return p.BulkThreshold
	}
	return BulkModifyThreshold
}

// PrimeRequest names the source volumes to clone and the account the
// clones are created under on the destination.
type PrimeRequest struct {
	SourceAccountID int   `json:"sourceAccountID" validate:"gt=0"`
	TargetAccountID int   `json:"targetAccountID" validate:"gt=0"`
	VolumeIDs       []int `json:"volumeIDs" validate:"min=1,dive,gt=0"`
}

// PrimeCorrespondence maps one source volume to its created clone.
type PrimeCorrespondence struct {
	SourceVolumeID int    `json:"sourceVolumeID"`
	TargetVolumeID int    `json:"targetVolumeID"`
	Name           string `json:"name"`
	TotalSize      int64  `json:"totalSize"`
}

// PrimeReport is the outcome of a priming run. PairingData is the
// ready-to-use payload for a subsequent volume --pair call.
type PrimeReport struct {
	SourceCluster string                `json:"sourceCluster"`
	TargetCluster string                `json:"targetCluster"`
	Created       []PrimeCorrespondence `json:"created"`
	PairingData   string                `json:"pairingData"`
}

// Prime clones the named source volumes onto dst.
//
// Validation (all-or-nothing, before any create):
//   - every named volume exists on src, is active, belongs to the
//     source account, and is unpaired;
//   - the target account exists on dst.
//
// Each clone copies name, size, emulation, FIFO settings, and either
// the per-volume QoS curve or the QoS policy reference, whichever the
// template carries. The clones are then flipped to replicationTarget,
// in bulk under the threshold and per-volume fail-fast above it.
func (p *Primer) Prime(ctx context.Context, src, dst *Endpoint, req PrimeRequest) (*PrimeReport, error) {
	const op = "prime destination volumes"

	templates, err := p.validateTemplates(ctx, src, req)
	if err != nil {
		return nil, err
	}

	account, err := dst.API.GetAccountByID(ctx, req.TargetAccountID)
	if err != nil {
		return nil, remoteQueryErr(dst.ClusterName, "GetAccountByID", err)
	}
	p.Log.Info("priming destination volumes",
		"source", src.ClusterName, "target", dst.ClusterName,
		"target_account", account.Username, "count", len(templates))

	report := &PrimeReport{
		SourceCluster: src.ClusterName,
		TargetCluster: dst.ClusterName,
	}
	for _, tpl := range templates {
		created, err := dst.API.CreateVolume(ctx, cloneRequest(tpl, req.TargetAccountID))
		if err != nil {
			return nil, &PartialFailureError{
				Op:          op,
				Completed:   report.createdSummaries(),
				Remediation: fmt.Sprintf("creating a clone of source volume %d failed; the volumes already created on %s were left in place", tpl.VolumeID, dst.ClusterName),
				Wrapped:     err,
			}
		}
		report.Created = append(report.Created, PrimeCorrespondence{
			SourceVolumeID: tpl.VolumeID,
			TargetVolumeID: created.VolumeID,
			Name:           created.Name,
			TotalSize:      created.TotalSize,
		})
		p.Log.Debug("clone created",
			"source_volume_id", tpl.VolumeID, "target_volume_id", created.VolumeID, "name", created.Name)
	}

	if err := p.markReplicationTargets(ctx, dst, report); err != nil {
		return nil, err
	}

	report.PairingData = pairingData(report.Created)
	p.Log.Info("destination primed",
		"created", len(report.Created), "pairing_data", report.PairingData)
	return report, nil
}

// validateTemplates loads the named volumes from src and rejects the
// whole request on the first volume that is missing, paired, or owned
// by a different account.
func (p *Primer) validateTemplates(ctx context.Context, src *Endpoint, req PrimeRequest) ([]element.Volume, error) {
	const op = "prime destination volumes"

	vols, err := src.API.ListVolumes(ctx, element.UnpairedActiveFilter(req.VolumeIDs))
	if err != nil {
		return nil, remoteQueryErr(src.ClusterName, "ListVolumes", err)
	}
	byID := make(map[int]element.Volume, len(vols))
	for _, v := range vols {
		byID[v.VolumeID] = v
	}

	templates := make([]element.Volume, 0, len(req.VolumeIDs))
	for _, id := range req.VolumeIDs {
		v, ok := byID[id]
		if !ok {
			return nil, preconditionErr(op,
				"volume %d is not an active unpaired volume on %s", id, src.ClusterName)
		}
		if v.AccountID != req.SourceAccountID {
			return nil, preconditionErr(op,
				"volume %d belongs to account %d, not to the requested source account %d",
				id, v.AccountID, req.SourceAccountID)
		}
		templates = append(templates, v)
	}
	return templates, nil
}

// cloneRequest builds the create request for one template volume. The
// template's own QoS settings win: a referenced policy is carried as a
// policy reference, an inline curve as an inline curve, never both.
func cloneRequest(tpl element.Volume, accountID int) element.CreateVolumeRequest {
	req := element.CreateVolumeRequest{
		Name:        tpl.Name,
		AccountID:   accountID,
		TotalSize:   tpl.TotalSize,
		Enable512e:  tpl.Enable512e,
		FifoSize:    tpl.FifoSize,
		MinFifoSize: tpl.MinFifoSize,
	}
	if tpl.QoSPolicyID != nil {
		req.QoSPolicyID = tpl.QoSPolicyID
	} else {
		req.QoS = tpl.QoS
	}
	return req
}

// markReplicationTargets flips every created clone to replicationTarget
// so it can complete a pairing as the passive side.
func (p *Primer) markReplicationTargets(ctx context.Context, dst *Endpoint, report *PrimeReport) error {
	const op = "prime destination volumes"

	access := element.AccessReplicationTarget
	mod := element.VolumeModification{Access: &access}
	ids := make([]int, 0, len(report.Created))
	for _, c := range report.Created {
		ids = append(ids, c.TargetVolumeID)
	}

	if len(ids) < p.bulkThreshold() {
		if err := dst.API.ModifyVolumes(ctx, ids, mod); err != nil {
			return &PartialFailureError{
				Op:          op,
				Completed:   report.createdSummaries(),
				Remediation: fmt.Sprintf("the clones were created but not flipped; set them to replicationTarget on %s by hand", dst.ClusterName),
				Wrapped:     err,
			}
		}
		return nil
	}
	for i, id := range ids {
		if err := dst.API.ModifyVolume(ctx, id, mod); err != nil {
			return &PartialFailureError{
				Op:          op,
				Completed:   append(report.createdSummaries(), fmt.Sprintf("%d clones already flipped to replicationTarget", i)),
				Remediation: fmt.Sprintf("set the remaining clones to replicationTarget on %s by hand", dst.ClusterName),
				Wrapped:     err,
			}
		}
	}
	return nil
}

func (r *PrimeReport) createdSummaries() []string {
	out := make([]string, 0, len(r.Created))
	for _, c := range r.Created {
		out = append(out, fmt.Sprintf("created volume %d (%s) from source volume %d",
			c.TargetVolumeID, c.Name, c.SourceVolumeID))
	}
	return out
}

// pairingData renders the source→clone correspondence in the payload
// grammar volume --pair accepts.
func pairingData(created []PrimeCorrespondence) string {
	parts := make([]string, 0, len(created))
	for _, c := range created {
		parts = append(parts, fmt.Sprintf("%d,%d", c.SourceVolumeID, c.TargetVolumeID))
	}
	return strings.Join(parts, ";")
}

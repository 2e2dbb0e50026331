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

// Snapshot defaults: one week of retention under a name that encodes it.
const (
	DefaultSnapshotRetentionHours = 168
	DefaultSnapshotName           = "long168h-snap"
)

// Snapshotter takes a crash-consistent snapshot of every paired volume
// on the source side of a site, usually right before a disruptive
// operation like a direction reversal.
type Snapshotter struct {
	Log     *logging.Logger
	Catalog *Catalog
}

// NewSnapshotter returns a Snapshotter sharing the catalog.
func NewSnapshotter(log *logging.Logger, catalog *Catalog) *Snapshotter {
	if log == nil {
		log = logging.Default()
	}
	if catalog == nil {
		catalog = NewCatalog(log, nil)
	}
	return &Snapshotter{Log: log, Catalog: catalog}
}

// SiteSnapshot is one created snapshot in a site snapshot report.
type SiteSnapshot struct {
	VolumeID       int    `json:"volumeID"`
	SnapshotID     int    `json:"snapshotID"`
	Name           string `json:"name"`
	ExpirationTime string `json:"expirationTime,omitempty"`
}

// SnapshotReport lists every snapshot a site snapshot run created.
type SnapshotReport struct {
	Cluster   string         `json:"cluster"`
	Retention string         `json:"retention"`
	Snapshots []SiteSnapshot `json:"snapshots"`
}

// SnapshotSite snapshots every paired volume on src, one call per
// volume, fail-fast. Retention is expressed in whole hours and encoded
// "H:00:00" on the wire. Snapshots already taken survive a mid-run
// failure; the platform expires them on its own.
func (s *Snapshotter) SnapshotSite(ctx context.Context, src, dst *Endpoint, retentionHours int, name string) (*SnapshotReport, error) {
	const op = "snapshot site volumes"

	if retentionHours <= 0 {
		retentionHours = DefaultSnapshotRetentionHours
	}
	if name == "" {
		name = DefaultSnapshotName
	}
	retention := fmt.Sprintf("%d:00:00", retentionHours)

	paired, err := s.Catalog.ListPairedVolumes(ctx, src, dst, nil)
	if err != nil {
		return nil, err
	}
	if len(paired) == 0 {
		return nil, preconditionErr(op, "no paired volumes between %s and %s; nothing to snapshot",
			src.ClusterName, dst.ClusterName)
	}

	report := &SnapshotReport{Cluster: src.ClusterName, Retention: retention}
	for _, pv := range paired {
		snap, err := src.API.CreateSnapshot(ctx, element.CreateSnapshotRequest{
			VolumeID:  pv.LocalVolumeID,
			Name:      name,
			Retention: retention,
		})
		if err != nil {
			completed := make([]string, 0, len(report.Snapshots))
			for _, ss := range report.Snapshots {
				completed = append(completed, fmt.Sprintf("snapshot %d of volume %d", ss.SnapshotID, ss.VolumeID))
			}
			return nil, &PartialFailureError{
				Op:          op,
				Completed:   completed,
				Remediation: fmt.Sprintf("snapshotting volume %d failed; snapshots already taken were left in place and expire after %s", pv.LocalVolumeID, retention),
				Wrapped:     err,
			}
		}
		report.Snapshots = append(report.Snapshots, SiteSnapshot{
			VolumeID:       snap.VolumeID,
			SnapshotID:     snap.SnapshotID,
			Name:           snap.Name,
			ExpirationTime: snap.ExpirationTime,
		})
		s.Log.Debug("snapshot created",
			"cluster", src.ClusterName, "volume_id", snap.VolumeID, "snapshot_id", snap.SnapshotID)
	}

	s.Log.Info("site snapshot complete",
		"cluster", src.ClusterName, "snapshots", len(report.Snapshots), "retention", retention)
	return report, nil
}

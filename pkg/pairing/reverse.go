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
	"io"
	"os"
	"time"

	"github.com/AleutianAI/replicactl/pkg/element"
	"github.com/AleutianAI/replicactl/pkg/logging"
)

// DefaultGracePeriod is how long the reversal countdown runs before any
// mutation is issued. Flipping every volume's access mode takes the
// workload offline, so the operator gets a window to abort.
const DefaultGracePeriod = 15 * time.Second

// Reverser flips the replication direction of an entire site: every
// readWrite volume becomes a replicationTarget and vice versa. This is
// the failover/failback primitive, and the most disruptive operation in
// the tool. It refuses to run unless both sides are uniform and
// complementary, so a half-flipped site never gets flipped further.
type Reverser struct {
	Log         *logging.Logger
	Catalog     *Catalog
	DryRun      bool
	GracePeriod time.Duration

	// BulkThreshold overrides BulkModifyThreshold when positive.
	BulkThreshold int

	// CountdownWriter receives the per-second countdown. Defaults to
	// stderr so report JSON on stdout stays parseable.
	CountdownWriter io.Writer
}

// NewReverser returns a Reverser with the default grace period.
func NewReverser(log *logging.Logger, catalog *Catalog, dryRun bool) *Reverser {
	if log == nil {
		log = logging.Default()
	}
	if catalog == nil {
		catalog = NewCatalog(log, nil)
	}
	return &Reverser{
		Log:         log,
		Catalog:     catalog,
		DryRun:      dryRun,
		GracePeriod: DefaultGracePeriod,
	}
}

func (r *Reverser) bulkThreshold() int {
	if r.BulkThreshold > 0 {
		return r.BulkThreshold
	}
	return BulkModifyThreshold
}

func (r *Reverser) countdownWriter() io.Writer {
	if r.CountdownWriter != nil {
		return r.CountdownWriter
	}
	return os.Stderr
}

// ReversalReport describes the direction flip that was (or, under dry
// run, would be) applied.
type ReversalReport struct {
	DryRun          bool   `json:"dryRun"`
	SourceCluster   string `json:"sourceCluster"`
	TargetCluster   string `json:"targetCluster"`
	SourceNewAccess string `json:"sourceNewAccess"`
	TargetNewAccess string `json:"targetNewAccess"`
	SourceVolumeIDs []int  `json:"sourceVolumeIDs"`
	TargetVolumeIDs []int  `json:"targetVolumeIDs"`
}

// Reverse flips the replication direction between src and dst.
//
// Preconditions, all fatal:
//   - exactly one cluster pair record at src, and it names dst;
//   - at least one paired volume;
//   - each side's paired volumes carry one uniform access mode;
//   - the two modes are complementary (one readWrite side, one
//     replicationTarget side).
//
// After the countdown the flip runs in bulk when both sides are under
// the threshold, per-volume otherwise. Per-volume runs pause first,
// flip, then resume, so no volume replicates mid-flip. Any failure
// stops immediately and nothing already flipped is reverted.
func (r *Reverser) Reverse(ctx context.Context, src, dst *Endpoint) (*ReversalReport, error) {
	const op = "reverse replication direction"

	if err := r.requireSolePeer(ctx, src, dst); err != nil {
		return nil, err
	}

	paired, err := r.Catalog.ListPairedVolumes(ctx, src, dst, nil)
	if err != nil {
		return nil, err
	}
	if len(paired) == 0 {
		return nil, preconditionErr(op, "no paired volumes between %s and %s; nothing to reverse",
			src.ClusterName, dst.ClusterName)
	}

	srcIDs := localVolumeIDs(paired)
	dstIDs := remoteVolumeIDs(paired)

	srcVols, err := src.API.ListVolumes(ctx, element.PairedActiveFilter(srcIDs))
	if err != nil {
		return nil, remoteQueryErr(src.ClusterName, "ListVolumes", err)
	}
	dstVols, err := dst.API.ListVolumes(ctx, element.PairedActiveFilter(dstIDs))
	if err != nil {
		return nil, remoteQueryErr(dst.ClusterName, "ListVolumes", err)
	}
	if len(srcVols) != len(srcIDs) || len(dstVols) != len(dstIDs) {
		return nil, preconditionErr(op,
			"paired volume listing is incomplete (%d/%d on %s, %d/%d on %s); refusing to flip a partial set",
			len(srcVols), len(srcIDs), src.ClusterName, len(dstVols), len(dstIDs), dst.ClusterName)
	}

	srcAccess := uniformAccess(srcVols)
	if srcAccess == "" {
		return nil, preconditionErr(op, "%s paired volumes carry mixed access modes; repair the site before reversing",
			src.ClusterName)
	}
	dstAccess := uniformAccess(dstVols)
	if dstAccess == "" {
		return nil, preconditionErr(op, "%s paired volumes carry mixed access modes; repair the site before reversing",
			dst.ClusterName)
	}
	if !complementary(srcAccess, dstAccess) {
		return nil, preconditionErr(op,
			"access modes are not complementary (%s=%s, %s=%s); exactly one side must be readWrite",
			src.ClusterName, srcAccess, dst.ClusterName, dstAccess)
	}

	report := &ReversalReport{
		DryRun:          r.DryRun,
		SourceCluster:   src.ClusterName,
		TargetCluster:   dst.ClusterName,
		SourceNewAccess: dstAccess,
		TargetNewAccess: srcAccess,
		SourceVolumeIDs: srcIDs,
		TargetVolumeIDs: dstIDs,
	}
	if r.DryRun {
		r.Log.Info("dry run: would reverse replication direction",
			"source", src.ClusterName, "target", dst.ClusterName,
			"source_new_access", report.SourceNewAccess, "target_new_access", report.TargetNewAccess)
		return report, nil
	}

	if err := r.countdown(ctx); err != nil {
		return nil, err
	}

	if len(srcIDs) < r.bulkThreshold() && len(dstIDs) < r.bulkThreshold() {
		err = r.flipBulk(ctx, src, dst, report)
	} else {
		err = r.flipSequential(ctx, src, dst, report)
	}
	if err != nil {
		return nil, err
	}

	r.Log.Info("replication direction reversed",
		"new_read_write_side", r.newReadWriteSide(src, dst, report),
		"volumes_flipped", len(srcIDs)+len(dstIDs))
	return report, nil
}

func (r *Reverser) newReadWriteSide(src, dst *Endpoint, report *ReversalReport) string {
	if report.SourceNewAccess == element.AccessReadWrite {
		return src.ClusterName
	}
	return dst.ClusterName
}

// requireSolePeer demands exactly one cluster pair record at src, and
// that the record names dst. A foreign peer means the endpoints were
// mixed up, and a reversal against the wrong cluster must never start.
func (r *Reverser) requireSolePeer(ctx context.Context, src, dst *Endpoint) error {
	pairs, err := src.API.ListClusterPairs(ctx)
	if err != nil {
		return remoteQueryErr(src.ClusterName, "ListClusterPairs", err)
	}
	if len(pairs) != 1 {
		return preconditionErr("reverse replication direction",
			"%s has %d cluster pair records, need exactly 1", src.ClusterName, len(pairs))
	}
	if pairs[0].ClusterName != dst.ClusterName {
		return preconditionErr("reverse replication direction",
			"%s is paired with %q, not with %q; check the endpoints",
			src.ClusterName, pairs[0].ClusterName, dst.ClusterName)
	}
	return nil
}

// countdown prints one line per second until the grace period elapses.
// Context cancellation aborts with no mutation issued.
func (r *Reverser) countdown(ctx context.Context) error {
	grace := r.GracePeriod
	if grace <= 0 {
		return nil
	}
	w := r.countdownWriter()
	seconds := int(grace / time.Second)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	fmt.Fprintf(w, "Reversing replication direction in %d seconds. Press Ctrl-C to abort.\n", seconds)
	for remaining := seconds; remaining > 0; remaining-- {
		fmt.Fprintf(w, "%d...\n", remaining)
		select {
		case <-ctx.Done():
			fmt.Fprintln(w, "Aborted. No changes were made.")
			return fmt.Errorf("reversal aborted during countdown: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// flipBulk swaps the access modes with one ModifyVolumes call per side,
// source side first. Pairing is left running; the platform holds
// replication while the modes are inconsistent and resumes it once they
// settle complementary again.
func (r *Reverser) flipBulk(ctx context.Context, src, dst *Endpoint, report *ReversalReport) error {
	if err := src.API.ModifyVolumes(ctx, report.SourceVolumeIDs,
		element.VolumeModification{Access: &report.SourceNewAccess}); err != nil {
		return &PartialFailureError{
			Op:          "reverse replication direction",
			Completed:   nil,
			Remediation: fmt.Sprintf("no side was flipped; verify %s volume access modes before retrying", src.ClusterName),
			Wrapped:     err,
		}
	}
	r.Log.Info("access flipped in bulk",
		"cluster", src.ClusterName, "access", report.SourceNewAccess, "volumes", len(report.SourceVolumeIDs))

	if err := dst.API.ModifyVolumes(ctx, report.TargetVolumeIDs,
		element.VolumeModification{Access: &report.TargetNewAccess}); err != nil {
		return &PartialFailureError{
			Op: "reverse replication direction",
			Completed: []string{fmt.Sprintf("%s volumes flipped to %s",
				src.ClusterName, report.SourceNewAccess)},
			Remediation: fmt.Sprintf("flip %s volumes to %s by hand; until then both sides carry the same access mode and replication is held",
				dst.ClusterName, report.TargetNewAccess),
			Wrapped: err,
		}
	}
	r.Log.Info("access flipped in bulk",
		"cluster", dst.ClusterName, "access", report.TargetNewAccess, "volumes", len(report.TargetVolumeIDs))
	return nil
}

// flipSequential is the large-site path: pause every pair, flip every
// volume, resume every pair, each step per-volume and fail-fast. The
// pause bounds how long replication runs against half-flipped sides.
func (r *Reverser) flipSequential(ctx context.Context, src, dst *Endpoint, report *ReversalReport) error {
	const op = "reverse replication direction"
	var completed []string

	step := func(ep *Endpoint, ids []int, apply func(int) error, desc string) error {
		for _, id := range ids {
			if err := apply(id); err != nil {
				return &PartialFailureError{
					Op:          op,
					Completed:   completed,
					Remediation: fmt.Sprintf("%s failed at %s volume %d; finish the remaining steps by hand and verify with volume --list", desc, ep.ClusterName, id),
					Wrapped:     err,
				}
			}
		}
		completed = append(completed, fmt.Sprintf("%s on %s (%d volumes)", desc, ep.ClusterName, len(ids)))
		return nil
	}

	pausedTrue, pausedFalse := true, false
	pause := element.PairModification{PausedManual: &pausedTrue}
	resume := element.PairModification{PausedManual: &pausedFalse}

	if err := step(dst, report.TargetVolumeIDs, func(id int) error {
		return dst.API.ModifyVolumePair(ctx, id, pause)
	}, "pause replication"); err != nil {
		return err
	}
	if err := step(src, report.SourceVolumeIDs, func(id int) error {
		return src.API.ModifyVolumePair(ctx, id, pause)
	}, "pause replication"); err != nil {
		return err
	}

	if err := step(dst, report.TargetVolumeIDs, func(id int) error {
		return dst.API.ModifyVolume(ctx, id, element.VolumeModification{Access: &report.TargetNewAccess})
	}, "flip access mode"); err != nil {
		return err
	}
	if err := step(src, report.SourceVolumeIDs, func(id int) error {
		return src.API.ModifyVolume(ctx, id, element.VolumeModification{Access: &report.SourceNewAccess})
	}, "flip access mode"); err != nil {
		return err
	}

	if err := step(dst, report.TargetVolumeIDs, func(id int) error {
		return dst.API.ModifyVolumePair(ctx, id, resume)
	}, "resume replication"); err != nil {
		return err
	}
	return step(src, report.SourceVolumeIDs, func(id int) error {
		return src.API.ModifyVolumePair(ctx, id, resume)
	}, "resume replication")
}

// complementary reports whether exactly one of the two access modes is
// readWrite and the other is replicationTarget.
func complementary(a, b string) bool {
	return (a == element.AccessReadWrite && b == element.AccessReplicationTarget) ||
		(a == element.AccessReplicationTarget && b == element.AccessReadWrite)
}

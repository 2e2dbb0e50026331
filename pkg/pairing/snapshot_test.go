// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/replicactl/pkg/element"
)

func newTestSnapshotter() *Snapshotter {
	log := testLogger()
	return NewSnapshotter(log, NewCatalog(log, NewInspector(log)))
}

// snapshotSite builds a two-volume site replicating src->dst.
func snapshotSite(srcAPI, dstAPI *fakeAPI) {
	mutualClusterPairs(srcAPI, dstAPI)
	srcAPI.volumes = []element.Volume{
		pairedVolume(100, 200, srcPairID, element.AccessReadWrite, 1<<30),
		pairedVolume(101, 201, srcPairID, element.AccessReadWrite, 1<<30),
	}
	dstAPI.volumes = []element.Volume{
		pairedVolume(200, 100, dstPairID, element.AccessReplicationTarget, 1<<30),
		pairedVolume(201, 101, dstPairID, element.AccessReplicationTarget, 1<<30),
	}
}

// Zero retention and an empty name fall back to the one-week defaults.
func TestSnapshotSite_Defaults(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	snapshotSite(srcAPI, dstAPI)

	report, err := newTestSnapshotter().SnapshotSite(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI), 0, "")
	require.NoError(t, err)

	assert.Equal(t, "168:00:00", report.Retention)
	assert.Equal(t, []string{
		"CreateSnapshot(100,long168h-snap,168:00:00)",
		"CreateSnapshot(101,long168h-snap,168:00:00)",
	}, srcAPI.callsMatching("CreateSnapshot"))
	require.Len(t, report.Snapshots, 2)
	assert.Equal(t, 9100, report.Snapshots[0].SnapshotID)
	assert.Equal(t, 100, report.Snapshots[0].VolumeID)
}

// Explicit retention is encoded in whole hours on the wire.
func TestSnapshotSite_ExplicitRetention(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	snapshotSite(srcAPI, dstAPI)

	report, err := newTestSnapshotter().SnapshotSite(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI), 24, "pre-reverse")
	require.NoError(t, err)

	assert.Equal(t, "24:00:00", report.Retention)
	assert.Contains(t, srcAPI.callsMatching("CreateSnapshot"), "CreateSnapshot(100,pre-reverse,24:00:00)")
}

// A mid-run failure keeps the snapshots already taken.
func TestSnapshotSite_FailFast(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	snapshotSite(srcAPI, dstAPI)
	srcAPI.createSnapshotErr = map[int]error{101: errors.New("xSnapshotLimitReached")}

	_, err := newTestSnapshotter().SnapshotSite(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI), 0, "")

	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	require.Len(t, partial.Completed, 1)
	assert.Contains(t, partial.Completed[0], "volume 100")
	assert.Contains(t, partial.Remediation, "expire")
}

// A site with nothing paired has nothing to snapshot.
func TestSnapshotSite_NoPairedVolumes(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	mutualClusterPairs(srcAPI, dstAPI)

	_, err := newTestSnapshotter().SnapshotSite(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI), 0, "")

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Contains(t, pre.Reason, "nothing to snapshot")
}

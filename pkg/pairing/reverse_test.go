// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/replicactl/pkg/element"
)

// newTestReverser disables the countdown; the countdown has its own
// test.
func newTestReverser(dryRun bool) *Reverser {
	log := testLogger()
	r := NewReverser(log, NewCatalog(log, NewInspector(log)), dryRun)
	r.GracePeriod = 0
	r.CountdownWriter = &bytes.Buffer{}
	return r
}

// reverseSite builds a healthy two-volume site replicating src->dst.
func reverseSite(srcAPI, dstAPI *fakeAPI) {
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

// A healthy site under the threshold is flipped with one bulk call per
// side, source first.
func TestReverse_Bulk(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	reverseSite(srcAPI, dstAPI)

	report, err := newTestReverser(false).Reverse(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI))
	require.NoError(t, err)

	assert.Equal(t, element.AccessReplicationTarget, report.SourceNewAccess)
	assert.Equal(t, element.AccessReadWrite, report.TargetNewAccess)
	assert.Equal(t, []string{"ModifyVolumes([100 101])"}, srcAPI.callsMatching("ModifyVolumes"))
	assert.Equal(t, []string{"ModifyVolumes([200 201])"}, dstAPI.callsMatching("ModifyVolumes"))
}

// The flip reverses direction regardless of which side is currently
// readWrite.
func TestReverse_FailbackDirection(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	mutualClusterPairs(srcAPI, dstAPI)
	srcAPI.volumes = []element.Volume{
		pairedVolume(100, 200, srcPairID, element.AccessReplicationTarget, 1<<30),
	}
	dstAPI.volumes = []element.Volume{
		pairedVolume(200, 100, dstPairID, element.AccessReadWrite, 1<<30),
	}

	report, err := newTestReverser(false).Reverse(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI))
	require.NoError(t, err)

	assert.Equal(t, element.AccessReadWrite, report.SourceNewAccess)
	assert.Equal(t, element.AccessReplicationTarget, report.TargetNewAccess)
}

// Mixed access modes on one side mean a previous operation went bad;
// flipping further is refused before any mutation.
func TestReverse_MixedModesRefused(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	reverseSite(srcAPI, dstAPI)
	srcAPI.volumes[1].Access = element.AccessReplicationTarget

	_, err := newTestReverser(false).Reverse(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI))

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Contains(t, pre.Reason, "mixed access modes")
	assert.Empty(t, srcAPI.callsMatching("ModifyVolume"))
	assert.Empty(t, dstAPI.callsMatching("ModifyVolume"))
}

// Both sides uniformly readWrite is uniform but not complementary.
func TestReverse_NotComplementary(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	mutualClusterPairs(srcAPI, dstAPI)
	srcAPI.volumes = []element.Volume{
		pairedVolume(100, 200, srcPairID, element.AccessReadWrite, 1<<30),
	}
	dstAPI.volumes = []element.Volume{
		pairedVolume(200, 100, dstPairID, element.AccessReadWrite, 1<<30),
	}

	_, err := newTestReverser(false).Reverse(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI))

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Contains(t, pre.Reason, "complementary")
}

// A source paired with some third cluster must never be reversed
// against this destination.
func TestReverse_ForeignPeerRefused(t *testing.T) {
	srcAPI := &fakeAPI{clusterPairs: []element.ClusterPair{
		{ClusterPairID: 3, ClusterPairUUID: testPairUUID, ClusterName: "some-other-cluster"},
	}}

	_, err := newTestReverser(false).Reverse(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", &fakeAPI{}))

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
}

// At the threshold the flip becomes pause-all, flip-all, resume-all,
// per volume.
func TestReverse_SequentialAboveThreshold(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	reverseSite(srcAPI, dstAPI)
	r := newTestReverser(false)
	r.BulkThreshold = 2

	_, err := r.Reverse(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI))
	require.NoError(t, err)

	assert.Empty(t, srcAPI.callsMatching("ModifyVolumes"))
	assert.Equal(t, []string{
		"ModifyVolumePair(200,paused=true)",
		"ModifyVolumePair(201,paused=true)",
		"ModifyVolumePair(200,paused=false)",
		"ModifyVolumePair(201,paused=false)",
	}, dstAPI.callsMatching("ModifyVolumePair"))
	assert.Equal(t, []string{
		"ModifyVolumePair(100,paused=true)",
		"ModifyVolumePair(101,paused=true)",
		"ModifyVolumePair(100,paused=false)",
		"ModifyVolumePair(101,paused=false)",
	}, srcAPI.callsMatching("ModifyVolumePair"))
	assert.Len(t, srcAPI.callsMatching("ModifyVolume("), 2)
	assert.Len(t, dstAPI.callsMatching("ModifyVolume("), 2)
}

// A pause failure on the sequential path stops before any access mode
// changes.
func TestReverse_SequentialFailFast(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	reverseSite(srcAPI, dstAPI)
	dstAPI.modifyVolumePairErr = map[int]error{201: errors.New("xVolumeBusy")}
	r := newTestReverser(false)
	r.BulkThreshold = 2

	_, err := r.Reverse(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI))

	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Contains(t, partial.Remediation, "pause replication")
	assert.Empty(t, srcAPI.callsMatching("ModifyVolume"))
	assert.Empty(t, dstAPI.callsMatching("ModifyVolume("))
}

// Dry run reports the plan and runs no countdown and no mutation.
func TestReverse_DryRun(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	reverseSite(srcAPI, dstAPI)
	r := newTestReverser(true)
	r.GracePeriod = time.Hour // would hang if the countdown ran

	report, err := r.Reverse(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI))
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, []int{100, 101}, report.SourceVolumeIDs)
	assert.Empty(t, srcAPI.callsMatching("ModifyVolume"))
	assert.Empty(t, dstAPI.callsMatching("ModifyVolume"))
}

// Cancelling during the countdown aborts with zero mutations.
func TestReverse_CountdownCancelled(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	reverseSite(srcAPI, dstAPI)

	var buf bytes.Buffer
	r := newTestReverser(false)
	r.GracePeriod = 5 * time.Second
	r.CountdownWriter = &buf

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reverse(ctx, testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI))
	require.Error(t, err)

	assert.Contains(t, buf.String(), "Aborted")
	assert.Empty(t, srcAPI.callsMatching("ModifyVolume"))
	assert.Empty(t, dstAPI.callsMatching("ModifyVolume"))
	assert.Empty(t, dstAPI.callsMatching("ModifyVolumePair"))
}

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

func newTestResizer() *Resizer {
	log := testLogger()
	return NewResizer(log, NewCatalog(log, NewInspector(log)))
}

// resizeSite builds a healthy 100<->200 pair of the given sizes.
func resizeSite(srcAPI, dstAPI *fakeAPI, srcSize, dstSize int64) {
	mutualClusterPairs(srcAPI, dstAPI)
	srcAPI.volumes = []element.Volume{
		pairedVolume(100, 200, srcPairID, element.AccessReadWrite, srcSize),
	}
	dstAPI.volumes = []element.Volume{
		pairedVolume(200, 100, dstPairID, element.AccessReplicationTarget, dstSize),
	}
}

// Growing a pair: pause, target first, source second, resume, verify.
func TestGrow_Success(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	resizeSite(srcAPI, dstAPI, 1<<30, 1<<30)

	report, err := newTestResizer().Grow(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI),
		ResizeRequest{DeltaBytes: 1 << 30, SourceVolumeID: 100, TargetVolumeID: 200})
	require.NoError(t, err)

	assert.Equal(t, int64(1<<30), report.PreviousSize)
	assert.Equal(t, int64(2<<30), report.NewSize)
	assert.True(t, report.Resumed)
	assert.Equal(t, int64(2<<30), report.Source.TotalSize)
	assert.Equal(t, int64(2<<30), report.Target.TotalSize)

	assert.Equal(t, []string{
		"ModifyVolumePair(100,paused=true)",
		"ModifyVolumePair(100,paused=false)",
	}, srcAPI.callsMatching("ModifyVolumePair"))
	assert.Equal(t, []string{"ModifyVolume(200)"}, dstAPI.callsMatching("ModifyVolume("))
	assert.Equal(t, []string{"ModifyVolume(100)"}, srcAPI.callsMatching("ModifyVolume("))
}

// The delta is rounded down to the 4096-byte quantum before use.
func TestGrow_RoundsDeltaDown(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	resizeSite(srcAPI, dstAPI, 1<<30, 1<<30)

	report, err := newTestResizer().Grow(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI),
		ResizeRequest{DeltaBytes: 5000, SourceVolumeID: 100, TargetVolumeID: 200})
	require.NoError(t, err)

	assert.Equal(t, int64(1<<30)+4096, report.NewSize)
}

// A delta under the quantum rounds to zero and is rejected.
func TestGrow_SubQuantumDelta(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	resizeSite(srcAPI, dstAPI, 1<<30, 1<<30)

	_, err := newTestResizer().Grow(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI),
		ResizeRequest{DeltaBytes: 4095, SourceVolumeID: 100, TargetVolumeID: 200})

	var bounds *BoundsError
	require.ErrorAs(t, err, &bounds)
}

// Adding 2 GiB to a 1 GiB volume hits the strict doubling bound.
func TestGrow_DoublingBound(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	resizeSite(srcAPI, dstAPI, 1<<30, 1<<30)

	_, err := newTestResizer().Grow(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI),
		ResizeRequest{DeltaBytes: 2 << 30, SourceVolumeID: 100, TargetVolumeID: 200})

	var bounds *BoundsError
	require.ErrorAs(t, err, &bounds)
	assert.Equal(t, int64(2<<30), bounds.Limit)
	assert.Empty(t, srcAPI.callsMatching("ModifyVolumePair"))
}

// Growth above 1 TiB per step is rejected even when doubling allows it.
func TestGrow_StepCap(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	resizeSite(srcAPI, dstAPI, 2<<40, 2<<40)

	_, err := newTestResizer().Grow(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI),
		ResizeRequest{DeltaBytes: (1 << 40) + 4096, SourceVolumeID: 100, TargetVolumeID: 200})

	var bounds *BoundsError
	require.ErrorAs(t, err, &bounds)
	assert.Equal(t, MaxGrowthBytes, bounds.Limit)
}

// The 16 TiB volume ceiling holds regardless of the other bounds.
func TestGrow_Ceiling(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	current := MaxVolumeSizeBytes - (1 << 30)
	resizeSite(srcAPI, dstAPI, current, current)

	_, err := newTestResizer().Grow(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI),
		ResizeRequest{DeltaBytes: 2 << 30, SourceVolumeID: 100, TargetVolumeID: 200})

	var bounds *BoundsError
	require.ErrorAs(t, err, &bounds)
	assert.Equal(t, MaxVolumeSizeBytes, bounds.Limit)
}

// Unequal current sizes point the operator at --upsize-remote.
func TestGrow_UnequalSizes(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	resizeSite(srcAPI, dstAPI, 2<<30, 1<<30)

	_, err := newTestResizer().Grow(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI),
		ResizeRequest{DeltaBytes: 1 << 30, SourceVolumeID: 100, TargetVolumeID: 200})

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Contains(t, pre.Reason, "upsize-remote")
}

// The source must be readWrite and paired with the named target.
func TestGrow_RoleCheck(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	mutualClusterPairs(srcAPI, dstAPI)
	srcAPI.volumes = []element.Volume{
		pairedVolume(100, 200, srcPairID, element.AccessReplicationTarget, 1<<30),
	}
	dstAPI.volumes = []element.Volume{
		pairedVolume(200, 100, dstPairID, element.AccessReadWrite, 1<<30),
	}

	_, err := newTestResizer().Grow(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI),
		ResizeRequest{DeltaBytes: 1 << 30, SourceVolumeID: 100, TargetVolumeID: 200})

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Empty(t, srcAPI.callsMatching("ModifyVolumePair"))
}

// Target resized but source failing leaves asymmetric sizes, replication
// paused, and remediation text; nothing is rolled back.
func TestGrow_SourceResizeFails(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	resizeSite(srcAPI, dstAPI, 1<<30, 1<<30)
	srcAPI.modifyVolumeErr = map[int]error{100: errors.New("xVolumeBusy")}

	_, err := newTestResizer().Grow(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI),
		ResizeRequest{DeltaBytes: 1 << 30, SourceVolumeID: 100, TargetVolumeID: 200})

	var partial *PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Contains(t, partial.Remediation, "src-cluster")
	// The target keeps its new size and replication stays paused.
	assert.Equal(t, []string{"ModifyVolumePair(100,paused=true)"}, srcAPI.callsMatching("ModifyVolumePair"))
}

// Upsizing grows the smaller target to the source size, target only.
func TestUpsizeRemote_Success(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	resizeSite(srcAPI, dstAPI, 2<<30, 1<<30)

	report, err := newTestResizer().UpsizeRemote(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI), 100, 200)
	require.NoError(t, err)

	assert.Equal(t, int64(1<<30), report.PreviousSize)
	assert.Equal(t, int64(2<<30), report.NewSize)
	assert.Equal(t, []string{"ModifyVolume(200)"}, dstAPI.callsMatching("ModifyVolume("))
	assert.Empty(t, srcAPI.callsMatching("ModifyVolume("))
}

// Equal or larger targets have nothing to catch up.
func TestUpsizeRemote_TargetNotSmaller(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	resizeSite(srcAPI, dstAPI, 1<<30, 1<<30)

	_, err := newTestResizer().UpsizeRemote(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI), 100, 200)

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
}

// With inconsistent roles the resume is skipped, not forced: resuming
// could start replication in the wrong direction.
func TestUpsizeRemote_SkipsResumeOnInconsistentRoles(t *testing.T) {
	srcAPI, dstAPI := &fakeAPI{}, &fakeAPI{}
	mutualClusterPairs(srcAPI, dstAPI)
	srcAPI.volumes = []element.Volume{
		pairedVolume(100, 200, srcPairID, element.AccessReadWrite, 2<<30),
	}
	dstAPI.volumes = []element.Volume{
		pairedVolume(200, 100, dstPairID, element.AccessReadWrite, 1<<30),
	}

	report, err := newTestResizer().UpsizeRemote(context.Background(),
		testEndpoint("src-cluster", srcAPI), testEndpoint("dst-cluster", dstAPI), 100, 200)
	require.NoError(t, err)

	assert.False(t, report.Resumed)
	assert.Equal(t, []string{"ModifyVolumePair(100,paused=true)"}, srcAPI.callsMatching("ModifyVolumePair"))
}

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
	"sync"

	"github.com/AleutianAI/replicactl/pkg/element"
	"github.com/AleutianAI/replicactl/pkg/logging"
)

// fakeAPI implements API for testing. Volumes behave like a tiny
// in-memory cluster: ListVolumes applies the filter to the stored set,
// and ModifyVolume(s) mutate it, so choreographies that re-fetch and
// verify see their own writes. Per-method error maps inject failures.
type fakeAPI struct {
	mu    sync.Mutex
	calls []string

	clusterInfo element.ClusterInfo

	clusterPairs []element.ClusterPair
	// clusterPairsQueue, when non-empty, is consumed one response per
	// ListClusterPairs call before falling back to clusterPairs. Used
	// to simulate state changing between the pre-check and the
	// post-verify.
	clusterPairsQueue   [][]element.ClusterPair
	listClusterPairsErr error

	volumes        []element.Volume
	listVolumesErr error

	account       *element.Account
	getAccountErr error

	startClusterPairingKey string
	startClusterPairingErr error
	completeClusterPairID  int
	completeClusterPairErr error
	removeClusterPairErr   error

	nextVolumeID    int
	createVolumeErr map[int]error // keyed by creation order, 0-based

	modifyVolumeErr       map[int]error
	modifyVolumesErr      error
	startVolumePairingErr map[int]error
	completeVolPairErr    map[int]error
	removeVolumePairErr   map[int]error
	modifyVolumePairErr   map[int]error
	createSnapshotErr     map[int]error
}

func (f *fakeAPI) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// callsMatching returns the recorded calls with the given prefix.
func (f *fakeAPI) callsMatching(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) GetClusterInfo(ctx context.Context) (*element.ClusterInfo, error) {
	f.record("GetClusterInfo")
	info := f.clusterInfo
	return &info, nil
}

func (f *fakeAPI) ListClusterPairs(ctx context.Context) ([]element.ClusterPair, error) {
	f.record("ListClusterPairs")
	if f.listClusterPairsErr != nil {
		return nil, f.listClusterPairsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.clusterPairsQueue) > 0 {
		head := f.clusterPairsQueue[0]
		f.clusterPairsQueue = f.clusterPairsQueue[1:]
		return head, nil
	}
	return f.clusterPairs, nil
}

func (f *fakeAPI) StartClusterPairing(ctx context.Context) (string, error) {
	f.record("StartClusterPairing")
	if f.startClusterPairingErr != nil {
		return "", f.startClusterPairingErr
	}
	return f.startClusterPairingKey, nil
}

func (f *fakeAPI) CompleteClusterPairing(ctx context.Context, key string) (int, error) {
	f.record("CompleteClusterPairing(%s)", key)
	if f.completeClusterPairErr != nil {
		return 0, f.completeClusterPairErr
	}
	return f.completeClusterPairID, nil
}

func (f *fakeAPI) RemoveClusterPair(ctx context.Context, clusterPairID int) error {
	f.record("RemoveClusterPair(%d)", clusterPairID)
	return f.removeClusterPairErr
}

func (f *fakeAPI) ListVolumes(ctx context.Context, filter element.VolumeFilter) ([]element.Volume, error) {
	f.record("ListVolumes")
	if f.listVolumesErr != nil {
		return nil, f.listVolumesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	wantID := make(map[int]bool, len(filter.VolumeIDs))
	for _, id := range filter.VolumeIDs {
		wantID[id] = true
	}

	var out []element.Volume
	for _, v := range f.volumes {
		if len(wantID) > 0 && !wantID[v.VolumeID] {
			continue
		}
		if filter.IsPaired != nil && *filter.IsPaired != v.Paired() {
			continue
		}
		if filter.VolumeStatus != "" && filter.VolumeStatus != v.Status {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeAPI) ListVolumesForAccount(ctx context.Context, accountID int) ([]element.Volume, error) {
	f.record("ListVolumesForAccount(%d)", accountID)
	if f.listVolumesErr != nil {
		return nil, f.listVolumesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []element.Volume
	for _, v := range f.volumes {
		if v.AccountID == accountID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetAccountByID(ctx context.Context, accountID int) (*element.Account, error) {
	f.record("GetAccountByID(%d)", accountID)
	if f.getAccountErr != nil {
		return nil, f.getAccountErr
	}
	if f.account != nil {
		acc := *f.account
		return &acc, nil
	}
	return &element.Account{AccountID: accountID, Username: "test-account", Status: "active"}, nil
}

func (f *fakeAPI) CreateVolume(ctx context.Context, req element.CreateVolumeRequest) (*element.Volume, error) {
	f.mu.Lock()
	order := 0
	for _, c := range f.calls {
		if len(c) >= 12 && c[:12] == "CreateVolume" {
			order++
		}
	}
	f.mu.Unlock()
	f.record("CreateVolume(%s)", req.Name)
	if err := f.createVolumeErr[order]; err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextVolumeID++
	vol := element.Volume{
		VolumeID:    f.nextVolumeID,
		Name:        req.Name,
		AccountID:   req.AccountID,
		Access:      element.AccessReadWrite,
		Status:      element.VolumeStatusActive,
		TotalSize:   req.TotalSize,
		Enable512e:  req.Enable512e,
		FifoSize:    req.FifoSize,
		MinFifoSize: req.MinFifoSize,
		QoS:         req.QoS,
		QoSPolicyID: req.QoSPolicyID,
	}
	f.volumes = append(f.volumes, vol)
	return &vol, nil
}

func (f *fakeAPI) ModifyVolume(ctx context.Context, volumeID int, mod element.VolumeModification) error {
	f.record("ModifyVolume(%d)", volumeID)
	if err := f.modifyVolumeErr[volumeID]; err != nil {
		return err
	}
	f.applyModification(volumeID, mod)
	return nil
}

func (f *fakeAPI) ModifyVolumes(ctx context.Context, volumeIDs []int, mod element.VolumeModification) error {
	f.record("ModifyVolumes(%v)", volumeIDs)
	if f.modifyVolumesErr != nil {
		return f.modifyVolumesErr
	}
	for _, id := range volumeIDs {
		f.applyModification(id, mod)
	}
	return nil
}

func (f *fakeAPI) applyModification(volumeID int, mod element.VolumeModification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.volumes {
		if f.volumes[i].VolumeID != volumeID {
			continue
		}
		if mod.Access != nil {
			f.volumes[i].Access = *mod.Access
		}
		if mod.TotalSize != nil {
			f.volumes[i].TotalSize = *mod.TotalSize
		}
	}
}

func (f *fakeAPI) StartVolumePairing(ctx context.Context, volumeID int) (string, error) {
	f.record("StartVolumePairing(%d)", volumeID)
	if err := f.startVolumePairingErr[volumeID]; err != nil {
		return "", err
	}
	return fmt.Sprintf("key-%d", volumeID), nil
}

func (f *fakeAPI) CompleteVolumePairing(ctx context.Context, volumeID int, key string) error {
	f.record("CompleteVolumePairing(%d,%s)", volumeID, key)
	return f.completeVolPairErr[volumeID]
}

func (f *fakeAPI) RemoveVolumePair(ctx context.Context, volumeID int) error {
	f.record("RemoveVolumePair(%d)", volumeID)
	return f.removeVolumePairErr[volumeID]
}

func (f *fakeAPI) ModifyVolumePair(ctx context.Context, volumeID int, mod element.PairModification) error {
	switch {
	case mod.Mode != nil:
		f.record("ModifyVolumePair(%d,mode=%s)", volumeID, *mod.Mode)
	case mod.PausedManual != nil:
		f.record("ModifyVolumePair(%d,paused=%t)", volumeID, *mod.PausedManual)
	default:
		f.record("ModifyVolumePair(%d)", volumeID)
	}
	return f.modifyVolumePairErr[volumeID]
}

func (f *fakeAPI) CreateSnapshot(ctx context.Context, req element.CreateSnapshotRequest) (*element.Snapshot, error) {
	f.record("CreateSnapshot(%d,%s,%s)", req.VolumeID, req.Name, req.Retention)
	if err := f.createSnapshotErr[req.VolumeID]; err != nil {
		return nil, err
	}
	return &element.Snapshot{
		SnapshotID: 9000 + req.VolumeID,
		VolumeID:   req.VolumeID,
		Name:       req.Name,
	}, nil
}

var _ API = (*fakeAPI)(nil)

// ---------------------------------------------------------------------------
// Shared fixtures
// ---------------------------------------------------------------------------

const (
	testPairUUID = "b3e8c9a0-1a2b-4c3d-8e4f-5a6b7c8d9e0f"
	srcPairID    = 7
	dstPairID    = 9
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: logging.LevelDebug, Quiet: true})
}

func testEndpoint(name string, api *fakeAPI) *Endpoint {
	return &Endpoint{ClusterName: name, MVIP: "10.0.0.1", API: api}
}

// mutualClusterPairs wires two fakes into an exclusive mutual pairing.
func mutualClusterPairs(srcAPI, dstAPI *fakeAPI) {
	srcAPI.clusterPairs = []element.ClusterPair{
		{ClusterPairID: srcPairID, ClusterPairUUID: testPairUUID, ClusterName: "dst-cluster", MVIP: "10.0.0.2", Status: "Connected"},
	}
	dstAPI.clusterPairs = []element.ClusterPair{
		{ClusterPairID: dstPairID, ClusterPairUUID: testPairUUID, ClusterName: "src-cluster", MVIP: "10.0.0.1", Status: "Connected"},
	}
}

// pairedVolume builds one side of a mutually paired volume.
func pairedVolume(id, remoteID, clusterPairID int, access string, size int64) element.Volume {
	return element.Volume{
		VolumeID:   id,
		Name:       fmt.Sprintf("vol-%d", id),
		AccountID:  1,
		Access:     access,
		Status:     element.VolumeStatusActive,
		TotalSize:  size,
		BlockSize:  4096,
		Enable512e: true,
		VolumePairs: []element.VolumePair{{
			ClusterPairID:    clusterPairID,
			RemoteVolumeID:   remoteID,
			RemoteVolumeName: fmt.Sprintf("vol-%d", remoteID),
			VolumePairUUID:   fmt.Sprintf("pair-uuid-%d-%d", id, remoteID),
			RemoteReplication: element.RemoteReplication{
				Mode:  element.ModeAsync,
				State: "Active",
			},
		}},
	}
}

// unpairedVolume builds an active volume with no pairing record.
func unpairedVolume(id int, access string, size int64) element.Volume {
	return element.Volume{
		VolumeID:   id,
		Name:       fmt.Sprintf("vol-%d", id),
		AccountID:  1,
		Access:     access,
		Status:     element.VolumeStatusActive,
		TotalSize:  size,
		BlockSize:  4096,
		Enable512e: true,
	}
}

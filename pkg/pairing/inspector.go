// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pairing

import (
	"context"

	"github.com/google/uuid"

	"github.com/AleutianAI/replicactl/pkg/element"
	"github.com/AleutianAI/replicactl/pkg/logging"
)

// PairingSnapshot is the cluster-level pairing state of both endpoints
// at one moment. It is never cached: every consumer takes a fresh one
// immediately before acting, because either cluster can be re-paired
// out-of-band.
type PairingSnapshot struct {
	SourceCluster      string                `json:"sourceCluster"`
	DestinationCluster string                `json:"destinationCluster"`
	Source             []element.ClusterPair `json:"source"`
	Destination        []element.ClusterPair `json:"destination"`
}

// Empty reports whether the snapshot holds no pairing records at all.
func (s *PairingSnapshot) Empty() bool {
	return len(s.Source) == 0 && len(s.Destination) == 0
}

// Exclusive reports whether both sides hold exactly one record.
func (s *PairingSnapshot) Exclusive() bool {
	return len(s.Source) == 1 && len(s.Destination) == 1
}

// Inspector reads cluster-level pairing state. It makes no mutations.
type Inspector struct {
	Log *logging.Logger
}

// NewInspector returns an Inspector. A nil logger falls back to the
// default stderr logger.
func NewInspector(log *logging.Logger) *Inspector {
	if log == nil {
		log = logging.Default()
	}
	return &Inspector{Log: log}
}

// Snapshot fetches both endpoints' cluster pairing records. Either
// endpoint being unreachable fails the whole call with a
// RemoteQueryError; a partial snapshot would be worse than none.
func (in *Inspector) Snapshot(ctx context.Context, src, dst *Endpoint) (*PairingSnapshot, error) {
	snap := &PairingSnapshot{
		SourceCluster:      src.ClusterName,
		DestinationCluster: dst.ClusterName,
	}

	srcPairs, err := src.API.ListClusterPairs(ctx)
	if err != nil {
		return nil, remoteQueryErr(src.ClusterName, "ListClusterPairs", err)
	}
	snap.Source = srcPairs

	dstPairs, err := dst.API.ListClusterPairs(ctx)
	if err != nil {
		return nil, remoteQueryErr(dst.ClusterName, "ListClusterPairs", err)
	}
	snap.Destination = dstPairs

	in.Log.Debug("cluster pairing snapshot taken",
		"src_cluster", src.ClusterName, "src_pairs", len(srcPairs),
		"dst_cluster", dst.ClusterName, "dst_pairs", len(dstPairs),
	)
	return snap, nil
}

// ExclusiveMutualPairing returns a populated snapshot only when each
// side reports exactly one pairing record and the two records reference
// each other through the same cluster pair UUID. Any other state (zero
// records, multiple records, or two unrelated records) is ambiguous:
// the snapshot comes back empty and the ambiguity is logged. Every
// mutating operation gates on this result.
func (in *Inspector) ExclusiveMutualPairing(ctx context.Context, src, dst *Endpoint) (*PairingSnapshot, error) {
	snap, err := in.Snapshot(ctx, src, dst)
	if err != nil {
		return nil, err
	}

	if !snap.Exclusive() {
		in.Log.Warn("clusters are not in an exclusive pairing relationship",
			"src_cluster", src.ClusterName, "src_pairs", len(snap.Source),
			"dst_cluster", dst.ClusterName, "dst_pairs", len(snap.Destination),
		)
		return &PairingSnapshot{
			SourceCluster:      src.ClusterName,
			DestinationCluster: dst.ClusterName,
		}, nil
	}

	srcPair, dstPair := snap.Source[0], snap.Destination[0]
	if !mutual(srcPair, dstPair) {
		in.Log.Warn("clusters have pairing relationships but are not mutually paired",
			"src_cluster", src.ClusterName, "src_pair_uuid", srcPair.ClusterPairUUID,
			"dst_cluster", dst.ClusterName, "dst_pair_uuid", dstPair.ClusterPairUUID,
		)
		return &PairingSnapshot{
			SourceCluster:      src.ClusterName,
			DestinationCluster: dst.ClusterName,
		}, nil
	}

	in.Log.Info("clusters are exclusively and mutually paired",
		"cluster_pair_uuid", srcPair.ClusterPairUUID,
		"src_cluster_pair_id", srcPair.ClusterPairID,
		"dst_cluster_pair_id", dstPair.ClusterPairID,
	)
	return snap, nil
}

// mutual reports whether the two records describe the same pairing
// relationship. Unparseable UUIDs never match; a record with a mangled
// UUID is treated as ambiguous rather than trusted.
func mutual(a, b element.ClusterPair) bool {
	ua, err := uuid.Parse(a.ClusterPairUUID)
	if err != nil {
		return false
	}
	ub, err := uuid.Parse(b.ClusterPairUUID)
	if err != nil {
		return false
	}
	return ua == ub
}

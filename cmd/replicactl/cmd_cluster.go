// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/AleutianAI/replicactl/pkg/pairing"
)

// runCluster dispatches the cluster action flags.
func runCluster(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	s := openSession(ctx)
	defer s.log.Close()

	inspector := pairing.NewInspector(s.log)
	catalog := pairing.NewCatalog(s.log, inspector)
	lifecycle := pairing.NewLifecycle(s.log, inspector, catalog)

	switch {
	case clusterList:
		snapshot, err := inspector.Snapshot(ctx, s.src, s.dst)
		if err != nil {
			exitWith(ExitCluster, err)
		}
		if err := OutputJSON(snapshot); err != nil {
			exitWith(ExitCluster, err)
		}

	case clusterPair:
		snapshot, err := lifecycle.PairClusters(ctx, s.src, s.dst)
		if err != nil {
			exitWith(ExitCluster, err)
		}
		if err := OutputJSON(snapshot); err != nil {
			exitWith(ExitCluster, err)
		}

	case clusterUnpair:
		snapshot, err := lifecycle.UnpairClusters(ctx, s.src, s.dst)
		if err != nil {
			exitWith(ExitCluster, err)
		}
		if err := OutputJSON(snapshot); err != nil {
			exitWith(ExitCluster, err)
		}
	}
}

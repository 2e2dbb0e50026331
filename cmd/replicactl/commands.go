// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/replicactl/pkg/pairing"
)

// --- Global Command Variables ---
var (
	configPath   string
	dryRun       bool
	tlsVerify    bool
	graceSeconds int
	payload      string

	clusterList   bool
	clusterPair   bool
	clusterUnpair bool

	volumeList      bool
	volumePair      bool
	volumeUnpair    bool
	volumePrimeDst  bool
	volumeMismatch  bool
	volumeResize    bool
	volumeUpsize    bool
	volumeReverse   bool
	volumeSnapshot  bool
	volumeSetMode   bool
	volumeSetStatus bool

	siteDetach    bool
	siteSetAccess bool

	rootCmd = &cobra.Command{
		Use:   "replicactl",
		Short: "A cli to manage SolidFire cross-cluster replication pairing",
		Long: `Replicactl establishes, inspects, modifies and tears down volume
replication pairing between two SolidFire clusters. Cluster state is
re-read before every change; multi-step operations that fail partway
report what was committed and how to finish by hand.`,
	}

	clusterCmd = &cobra.Command{
		Use:   "cluster",
		Short: "Manage the cluster-level pairing relationship",
		Run:   runCluster, // Defined in cmd_cluster.go
	}

	volumeCmd = &cobra.Command{
		Use:   "volume",
		Short: "Manage volume-level replication relationships",
		Run:   runVolume, // Defined in cmd_volume.go
	}

	siteCmd = &cobra.Command{
		Use:   "site",
		Short: "Site-wide operations on the source cluster",
		Run:   runSite, // Defined in cmd_site.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "replicactl.yaml",
		"Path to the cluster configuration file")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry", false,
		"Dry run mode. NOT available for all actions; do not assume any action has zero impact under --dry")
	rootCmd.PersistentFlags().BoolVar(&tlsVerify, "tlsv", false,
		"Accept only verifiable TLS certificates when talking to the clusters")
	rootCmd.PersistentFlags().IntVar(&graceSeconds, "grace", int(pairing.DefaultGracePeriod/time.Second),
		"Seconds of cancellable countdown before a replication direction reversal")

	for _, cmd := range []*cobra.Command{clusterCmd, volumeCmd, siteCmd} {
		cmd.Flags().StringVar(&payload, "data", "",
			"Data payload for actions that take one; semicolon-separated fields of comma-separated lists")
	}

	clusterCmd.Flags().BoolVar(&clusterList, "list", false,
		"List the cluster pairing between the source and destination clusters. Ignores --data")
	clusterCmd.Flags().BoolVar(&clusterPair, "pair", false,
		"Pair the source and destination clusters for replication. Both must have no existing pairing. Ignores --data")
	clusterCmd.Flags().BoolVar(&clusterUnpair, "unpair", false,
		"Unpair the source and destination clusters. Requires an exclusive mutual pairing and zero volume pairings. Ignores --data")
	clusterCmd.MarkFlagsMutuallyExclusive("list", "pair", "unpair")
	clusterCmd.MarkFlagsOneRequired("list", "pair", "unpair")

	volumeCmd.Flags().BoolVar(&volumeList, "list", false,
		"List volumes correctly paired for replication. Optional --data narrows to specific source volume IDs")
	volumeCmd.Flags().BoolVar(&volumePair, "pair", false,
		`Pair volumes for Async replication. --data takes "srcID,dstID" pairs separated by ";", e.g. "111,555;112,600"`)
	volumeCmd.Flags().BoolVar(&volumeUnpair, "unpair", false,
		`Unpair one volume pair at a time. Example: --data "111,555"`)
	volumeCmd.Flags().BoolVar(&volumePrimeDst, "prime-dst", false,
		`Create matching volumes on the destination from source templates. Example: --data "1,22;444,555" (accounts;volumes)`)
	volumeCmd.Flags().BoolVar(&volumeMismatch, "mismatched", false,
		"Report volumes in asymmetric (one-sided) pairing relationships. Ignores --data")
	volumeCmd.Flags().BoolVar(&volumeResize, "resize", false,
		`Grow both volumes of a pair by up to 1 TiB or 2x current size, whichever is smaller. Example: --data "1073741824;100,200"`)
	volumeCmd.Flags().BoolVar(&volumeUpsize, "upsize-remote", false,
		`Grow the destination volume to the source volume's size. Example: --data "100,200"`)
	volumeCmd.Flags().BoolVar(&volumeReverse, "reverse", false,
		"Reverse the replication direction. Stop workloads on the current readWrite side first. Ignores --data")
	volumeCmd.Flags().BoolVar(&volumeSnapshot, "snapshot", false,
		`Snapshot every paired source volume. Optional --data "retentionHours;name", default "168;long168h-snap"`)
	volumeCmd.Flags().BoolVar(&volumeSetMode, "set-mode", false,
		`Change replication mode on paired source volumes. Example: --data "SnapshotsOnly;101,102". Omitted IDs mean all`)
	volumeCmd.Flags().BoolVar(&volumeSetStatus, "set-status", false,
		`Pause or resume replication on paired source volumes. Example: --data "pause" or "resume;101"`)
	volumeCmd.MarkFlagsMutuallyExclusive("list", "pair", "unpair", "prime-dst",
		"mismatched", "resize", "upsize-remote", "reverse", "snapshot", "set-mode", "set-status")
	volumeCmd.MarkFlagsOneRequired("list", "pair", "unpair", "prime-dst",
		"mismatched", "resize", "upsize-remote", "reverse", "snapshot", "set-mode", "set-status")

	siteCmd.Flags().BoolVar(&siteDetach, "detach-site", false,
		"Remove the source side of the cluster pairing to take over when the destination is unreachable. Irreversible. Ignores --data")
	siteCmd.Flags().BoolVar(&siteSetAccess, "set-access", false,
		`Change the access mode of every paired source volume. Example: --data "readWrite"`)
	siteCmd.MarkFlagsMutuallyExclusive("detach-site", "set-access")
	siteCmd.MarkFlagsOneRequired("detach-site", "set-access")

	rootCmd.AddCommand(clusterCmd, volumeCmd, siteCmd)
}

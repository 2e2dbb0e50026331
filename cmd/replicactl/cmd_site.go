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

// runSite dispatches the site action flags.
func runSite(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	// --set-access is the only site action with a payload; parse it
	// before the session so bad input never reaches a cluster.
	var accessMode string
	if siteSetAccess {
		mode, err := parseAccessData("--set-access", payload)
		if err != nil {
			exitWith(ExitSite, err)
		}
		accessMode = mode
	}

	s := openSession(ctx)
	defer s.log.Close()

	inspector := pairing.NewInspector(s.log)
	catalog := pairing.NewCatalog(s.log, inspector)

	switch {
	case siteDetach:
		lifecycle := pairing.NewLifecycle(s.log, inspector, catalog)
		if err := lifecycle.DetachSite(ctx, s.src, s.dst); err != nil {
			exitWith(ExitSite, err)
		}
		s.log.Info("site detached; remaining records on the peer must be cleaned up by hand",
			"source", s.src.ClusterName, "peer", s.dst.ClusterName)

	case siteSetAccess:
		attrs := pairing.NewAttributes(s.log, catalog)
		attrs.DryRun = dryRun
		report, err := attrs.SetSiteAccess(ctx, s.src, s.dst, accessMode)
		if err != nil {
			exitWith(ExitSite, err)
		}
		if err := OutputJSON(report); err != nil {
			exitWith(ExitSite, err)
		}
	}
}

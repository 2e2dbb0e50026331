// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/replicactl/pkg/pairing"
)

// runVolume dispatches the volume action flags. Every action exits with
// ExitVolume on failure except malformed payloads, which exit with
// ExitInput before any cluster call is made.
func runVolume(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()

	// Parse the payload before opening the session so bad input never
	// costs a connection or a password prompt.
	action, err := parseVolumeAction()
	if err != nil {
		exitWith(ExitVolume, err)
	}

	s := openSession(ctx)
	defer s.log.Close()

	inspector := pairing.NewInspector(s.log)
	catalog := pairing.NewCatalog(s.log, inspector)

	if err := action(ctx, s, inspector, catalog); err != nil {
		exitWith(ExitVolume, err)
	}
}

// volumeAction is one parsed, ready-to-run volume operation.
type volumeAction func(ctx context.Context, s *session, inspector *pairing.Inspector, catalog *pairing.Catalog) error

// parseVolumeAction validates --data for the selected action and
// returns the closure that performs it.
func parseVolumeAction() (volumeAction, error) {
	switch {
	case volumeList:
		ids, err := parseOptionalIDList("--list", payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session, _ *pairing.Inspector, catalog *pairing.Catalog) error {
			paired, err := catalog.ListPairedVolumes(ctx, s.src, s.dst, ids)
			if err != nil {
				return err
			}
			return OutputJSON(paired)
		}, nil

	case volumePair:
		pairs, err := parseVolumePairs("--pair", payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session, inspector *pairing.Inspector, catalog *pairing.Catalog) error {
			lifecycle := pairing.NewLifecycle(s.log, inspector, catalog)
			if err := lifecycle.PairVolumes(ctx, s.src, s.dst, pairs); err != nil {
				return err
			}
			ids := make([]int, 0, len(pairs))
			for _, p := range pairs {
				ids = append(ids, p.SourceVolumeID)
			}
			paired, err := catalog.ListPairedVolumes(ctx, s.src, s.dst, ids)
			if err != nil {
				return err
			}
			return OutputJSON(paired)
		}, nil

	case volumeUnpair:
		pair, err := parseSinglePair("--unpair", payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session, inspector *pairing.Inspector, catalog *pairing.Catalog) error {
			lifecycle := pairing.NewLifecycle(s.log, inspector, catalog)
			lifecycle.DryRun = dryRun
			report, err := lifecycle.UnpairVolumes(ctx, s.src, s.dst, pair)
			if err != nil {
				return err
			}
			return OutputJSON(report)
		}, nil

	case volumePrimeDst:
		req, err := parsePrimeData("--prime-dst", payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session, _ *pairing.Inspector, _ *pairing.Catalog) error {
			report, err := pairing.NewPrimer(s.log).Prime(ctx, s.src, s.dst, req)
			if err != nil {
				return err
			}
			return OutputJSON(report)
		}, nil

	case volumeMismatch:
		return func(ctx context.Context, s *session, _ *pairing.Inspector, catalog *pairing.Catalog) error {
			report, err := catalog.FindMismatches(ctx, s.src, s.dst)
			if err != nil {
				return err
			}
			return OutputJSON(report)
		}, nil

	case volumeResize:
		req, err := parseResizeData("--resize", payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session, _ *pairing.Inspector, catalog *pairing.Catalog) error {
			report, err := pairing.NewResizer(s.log, catalog).Grow(ctx, s.src, s.dst, req)
			if err != nil {
				return err
			}
			return OutputJSON(report)
		}, nil

	case volumeUpsize:
		pair, err := parseSinglePair("--upsize-remote", payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session, _ *pairing.Inspector, catalog *pairing.Catalog) error {
			report, err := pairing.NewResizer(s.log, catalog).UpsizeRemote(
				ctx, s.src, s.dst, pair.SourceVolumeID, pair.TargetVolumeID)
			if err != nil {
				return err
			}
			return OutputJSON(report)
		}, nil

	case volumeReverse:
		return func(ctx context.Context, s *session, _ *pairing.Inspector, catalog *pairing.Catalog) error {
			reverser := pairing.NewReverser(s.log, catalog, dryRun)
			reverser.GracePeriod = time.Duration(graceSeconds) * time.Second
			report, err := reverser.Reverse(ctx, s.src, s.dst)
			if err != nil {
				return err
			}
			return OutputJSON(report)
		}, nil

	case volumeSnapshot:
		hours, name, err := parseSnapshotData("--snapshot", payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session, _ *pairing.Inspector, catalog *pairing.Catalog) error {
			report, err := pairing.NewSnapshotter(s.log, catalog).SnapshotSite(ctx, s.src, s.dst, hours, name)
			if err != nil {
				return err
			}
			return OutputJSON(report)
		}, nil

	case volumeSetMode:
		mode, ids, err := parseModeData("--set-mode", payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session, _ *pairing.Inspector, catalog *pairing.Catalog) error {
			attrs := pairing.NewAttributes(s.log, catalog)
			attrs.DryRun = dryRun
			report, err := attrs.SetMode(ctx, s.src, s.dst, mode, ids)
			if err != nil {
				return err
			}
			return OutputJSON(report)
		}, nil

	case volumeSetStatus:
		state, ids, err := parseStateData("--set-status", payload)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, s *session, _ *pairing.Inspector, catalog *pairing.Catalog) error {
			attrs := pairing.NewAttributes(s.log, catalog)
			attrs.DryRun = dryRun
			report, err := attrs.SetState(ctx, s.src, s.dst, state, ids)
			if err != nil {
				return err
			}
			return OutputJSON(report)
		}, nil
	}

	// Cobra's one-required flag group makes this unreachable.
	return nil, inputErr("volume", payload, "no action selected")
}

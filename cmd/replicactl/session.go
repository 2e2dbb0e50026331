// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/AleutianAI/replicactl/pkg/element"
	"github.com/AleutianAI/replicactl/pkg/logging"
	"github.com/AleutianAI/replicactl/pkg/pairing"
)

// session holds the two resolved cluster endpoints and the process
// logger for the duration of one command.
type session struct {
	log *logging.Logger
	src *pairing.Endpoint
	dst *pairing.Endpoint
}

// openSession loads configuration, connects both clusters, and resolves
// their names. Failures here exit directly: 1 for unusable
// configuration, 2 when a client cannot be built, 3 when a cluster is
// reachable enough to connect but GetClusterInfo fails.
func openSession(ctx context.Context) *session {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := PromptMissingPasswords(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)
	if tlsVerify {
		log.Info("TLS verification is ON")
	} else {
		log.Info("TLS verification is OFF")
	}

	src := connectEndpoint(ctx, log, cfg.Source, "source")
	dst := connectEndpoint(ctx, log, cfg.Destination, "destination")
	log.Info("cluster names resolved", "source", src.ClusterName, "destination", dst.ClusterName)

	return &session{log: log, src: src, dst: dst}
}

func connectEndpoint(ctx context.Context, log *logging.Logger, cc ClusterConfig, role string) *pairing.Endpoint {
	client, err := element.Connect(element.Config{
		MVIP:      cc.MVIP,
		Username:  cc.Username,
		Password:  cc.Password,
		TLSVerify: tlsVerify,
	})
	if err != nil {
		log.Error("building cluster client failed", "role", role, "mvip", cc.MVIP, "error", err)
		os.Exit(ExitConnect)
	}

	info, err := client.GetClusterInfo(ctx)
	if err != nil {
		log.Error("resolving cluster name failed, cluster may be unreachable",
			"role", role, "mvip", cc.MVIP, "error", err)
		os.Exit(ExitClusterInfo)
	}

	return &pairing.Endpoint{
		ClusterName: info.Name,
		MVIP:        cc.MVIP,
		API:         client,
	}
}

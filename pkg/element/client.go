// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package element is a typed client for the SolidFire Element JSON-RPC API.

# Problem Statement

Every replicactl operation is a sequence of synchronous calls against
two independently administered clusters. The raw API speaks loosely
shaped JSON-RPC over HTTPS; letting that shape leak upward forces every
component to re-validate maps of any. This package pins the wire format
down at the boundary:

 1. One POST per call to https://{mvip}/json-rpc/{version}
 2. Typed request parameters and typed result records
 3. API faults surfaced as *APIError, transport failures as *TransportError

# Usage

	client, err := element.Connect(element.Config{
	    MVIP:     "10.1.1.1",
	    Username: "admin",
	    Password: pw,
	})
	if err != nil { ... }

	pairs, err := client.ListClusterPairs(ctx)

All methods are synchronous and safe for sequential use; replicactl
never calls the two clusters concurrently because cross-endpoint
ordering is load-bearing (pause before resize before resume).

# TLS

TLSVerify=false accepts self-signed management certificates, which is
the common state of SolidFire MVIPs. Enable verification with the
--tlsv flag once the cluster carries a verifiable certificate.
*/
package element

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultAPIVersion is the Element API endpoint version used when
// Config.APIVersion is empty. 12.3 is the floor for fifoSize support.
const DefaultAPIVersion = "12.3"

// defaultTimeout bounds a single API call. The API has no server-side
// streaming; anything slower than this is a stuck cluster.
const defaultTimeout = 120 * time.Second

// Config describes one cluster management endpoint.
type Config struct {
	// MVIP is the management virtual IP or hostname.
	MVIP string

	// Username and Password authenticate every call via HTTP basic auth.
	Username string
	Password string

	// TLSVerify requires a verifiable certificate when true.
	TLSVerify bool

	// APIVersion overrides DefaultAPIVersion when set.
	APIVersion string

	// Timeout overrides the per-call timeout when positive.
	Timeout time.Duration
}

// Client issues JSON-RPC calls against a single cluster endpoint.
// Create one per cluster with Connect.
type Client struct {
	endpoint  string
	target    string
	username  string
	password  string
	http      *http.Client
	requestID atomic.Int64
}

// Connect builds a Client for the given endpoint. No call is made; the
// first use (normally GetClusterInfo) establishes reachability.
func Connect(cfg Config) (*Client, error) {
	if cfg.MVIP == "" {
		return nil, fmt.Errorf("element: management address is required")
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("element: username is required")
	}
	version := cfg.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.TLSVerify},
	}
	return &Client{
		endpoint: fmt.Sprintf("https://%s/json-rpc/%s", cfg.MVIP, version),
		target:   cfg.MVIP,
		username: cfg.Username,
		password: cfg.Password,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}, nil
}

// Target returns the management address the client was built for.
func (c *Client) Target() string {
	return c.target
}

type rpcRequest struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
	ID     int64  `json:"id"`
}

type rpcFault struct {
	Code    int    `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcFault       `json:"error"`
}

// invoke performs one JSON-RPC call and decodes its result into out.
// A non-2xx status, a malformed body, or an error object all fail the
// call; there are no retries by design.
func (c *Client) invoke(ctx context.Context, method string, params, out any) error {
	req := rpcRequest{
		Method: method,
		Params: params,
		ID:     c.requestID.Add(1),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return &TransportError{Method: method, Target: c.target, Wrapped: fmt.Errorf("encode request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &TransportError{Method: method, Target: c.target, Wrapped: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.username, c.password)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &TransportError{Method: method, Target: c.target, Wrapped: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, Target: c.target, Wrapped: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return &TransportError{
			Method:  method,
			Target:  c.target,
			Wrapped: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	var decoded rpcResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return &TransportError{Method: method, Target: c.target, Wrapped: fmt.Errorf("decode response: %w", err)}
	}
	if decoded.Error != nil {
		return &APIError{
			Method:  method,
			Code:    decoded.Error.Code,
			Name:    decoded.Error.Name,
			Message: decoded.Error.Message,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return &TransportError{Method: method, Target: c.target, Wrapped: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Cluster
// -----------------------------------------------------------------------------

// GetClusterInfo returns the cluster's identity. It doubles as the
// reachability and credential check at startup.
func (c *Client) GetClusterInfo(ctx context.Context) (*ClusterInfo, error) {
	var result struct {
		ClusterInfo ClusterInfo `json:"clusterInfo"`
	}
	if err := c.invoke(ctx, "GetClusterInfo", nil, &result); err != nil {
		return nil, err
	}
	return &result.ClusterInfo, nil
}

// ListClusterPairs returns every cluster-level pairing record the
// cluster currently holds, with any cluster.
func (c *Client) ListClusterPairs(ctx context.Context) ([]ClusterPair, error) {
	var result struct {
		ClusterPairs []ClusterPair `json:"clusterPairs"`
	}
	if err := c.invoke(ctx, "ListClusterPairs", nil, &result); err != nil {
		return nil, err
	}
	return result.ClusterPairs, nil
}

// StartClusterPairing generates a pairing key on this cluster. The key
// is consumed by CompleteClusterPairing on the peer.
func (c *Client) StartClusterPairing(ctx context.Context) (string, error) {
	var result struct {
		ClusterPairingKey string `json:"clusterPairingKey"`
	}
	if err := c.invoke(ctx, "StartClusterPairing", nil, &result); err != nil {
		return "", err
	}
	return result.ClusterPairingKey, nil
}

// CompleteClusterPairing consumes a pairing key generated on the peer
// and returns the new cluster pair ID.
func (c *Client) CompleteClusterPairing(ctx context.Context, key string) (int, error) {
	params := map[string]any{"clusterPairingKey": key}
	var result struct {
		ClusterPairID int `json:"clusterPairID"`
	}
	if err := c.invoke(ctx, "CompleteClusterPairing", params, &result); err != nil {
		return 0, err
	}
	return result.ClusterPairID, nil
}

// RemoveClusterPair deletes one cluster pairing record on this cluster
// only. The peer keeps its half until told the same.
func (c *Client) RemoveClusterPair(ctx context.Context, clusterPairID int) error {
	params := map[string]any{"clusterPairID": clusterPairID}
	return c.invoke(ctx, "RemoveClusterPair", params, nil)
}

// -----------------------------------------------------------------------------
// Volumes
// -----------------------------------------------------------------------------

// ListVolumes returns the volumes matching the filter.
func (c *Client) ListVolumes(ctx context.Context, filter VolumeFilter) ([]Volume, error) {
	var result struct {
		Volumes []Volume `json:"volumes"`
	}
	if err := c.invoke(ctx, "ListVolumes", filter, &result); err != nil {
		return nil, err
	}
	return result.Volumes, nil
}

// ListVolumesForAccount returns every volume owned by the account.
func (c *Client) ListVolumesForAccount(ctx context.Context, accountID int) ([]Volume, error) {
	params := map[string]any{"accountID": accountID}
	var result struct {
		Volumes []Volume `json:"volumes"`
	}
	if err := c.invoke(ctx, "ListVolumesForAccount", params, &result); err != nil {
		return nil, err
	}
	return result.Volumes, nil
}

// GetAccountByID resolves an account, failing with an API fault when it
// does not exist.
func (c *Client) GetAccountByID(ctx context.Context, accountID int) (*Account, error) {
	params := map[string]any{"accountID": accountID}
	var result struct {
		Account Account `json:"account"`
	}
	if err := c.invoke(ctx, "GetAccountByID", params, &result); err != nil {
		return nil, err
	}
	return &result.Account, nil
}

// CreateVolume creates one volume and returns its record.
func (c *Client) CreateVolume(ctx context.Context, req CreateVolumeRequest) (*Volume, error) {
	var result struct {
		Volume Volume `json:"volume"`
	}
	if err := c.invoke(ctx, "CreateVolume", req, &result); err != nil {
		return nil, err
	}
	return &result.Volume, nil
}

// ModifyVolume changes attributes of a single volume.
func (c *Client) ModifyVolume(ctx context.Context, volumeID int, mod VolumeModification) error {
	params := struct {
		VolumeID int `json:"volumeID"`
		VolumeModification
	}{VolumeID: volumeID, VolumeModification: mod}
	return c.invoke(ctx, "ModifyVolume", params, nil)
}

// ModifyVolumes changes attributes of many volumes in one call. The
// cluster applies the change as a single bulk operation.
func (c *Client) ModifyVolumes(ctx context.Context, volumeIDs []int, mod VolumeModification) error {
	params := struct {
		VolumeIDs []int `json:"volumeIDs"`
		VolumeModification
	}{VolumeIDs: volumeIDs, VolumeModification: mod}
	return c.invoke(ctx, "ModifyVolumes", params, nil)
}

// -----------------------------------------------------------------------------
// Volume pairing
// -----------------------------------------------------------------------------

// StartVolumePairing generates a pairing key for one volume.
func (c *Client) StartVolumePairing(ctx context.Context, volumeID int) (string, error) {
	params := map[string]any{"volumeID": volumeID}
	var result struct {
		VolumePairingKey string `json:"volumePairingKey"`
	}
	if err := c.invoke(ctx, "StartVolumePairing", params, &result); err != nil {
		return "", err
	}
	return result.VolumePairingKey, nil
}

// CompleteVolumePairing consumes a pairing key on the peer volume.
func (c *Client) CompleteVolumePairing(ctx context.Context, volumeID int, key string) error {
	params := map[string]any{
		"volumeID":         volumeID,
		"volumePairingKey": key,
	}
	return c.invoke(ctx, "CompleteVolumePairing", params, nil)
}

// RemoveVolumePair deletes the pairing record of one volume on this
// cluster only.
func (c *Client) RemoveVolumePair(ctx context.Context, volumeID int) error {
	params := map[string]any{"volumeID": volumeID}
	return c.invoke(ctx, "RemoveVolumePair", params, nil)
}

// ModifyVolumePair changes replication mode or the manual pause flag of
// one volume's pairing.
func (c *Client) ModifyVolumePair(ctx context.Context, volumeID int, mod PairModification) error {
	params := struct {
		VolumeID int `json:"volumeID"`
		PairModification
	}{VolumeID: volumeID, PairModification: mod}
	return c.invoke(ctx, "ModifyVolumePair", params, nil)
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// CreateSnapshot creates a crash-consistent snapshot of one volume.
func (c *Client) CreateSnapshot(ctx context.Context, req CreateSnapshotRequest) (*Snapshot, error) {
	var result struct {
		Snapshot Snapshot `json:"snapshot"`
	}
	if err := c.invoke(ctx, "CreateSnapshot", req, &result); err != nil {
		return nil, err
	}
	return &result.Snapshot, nil
}

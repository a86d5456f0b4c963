package datanode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stratadb/stratadb"
)

// HTTPClient is a Facade implementation that issues each operation as a JSON
// POST to the target peer's address. It is the thinnest possible carrier for
// the contract spec.md §4.6 defines — the transport itself is scoped out, so
// no third-party RPC framework from the pack is wired in here (see DESIGN.md).
type HTTPClient struct {
	peer    stratadb.Peer
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient returns a Facade that talks to peer over HTTP, bounding each
// call by timeout.
func NewHTTPClient(peer stratadb.Peer, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		peer:    peer,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

type openRegionRequest struct {
	Token Token `json:"token"`
	Role  Role  `json:"role"`
}

type openRegionResponse struct {
	OpenedAt uint64 `json:"opened_at"`
}

type setLeaseRequest struct {
	Token Token      `json:"token"`
	Lease LeaseState `json:"lease"`
}

func (c *HTTPClient) post(ctx context.Context, path string, req any, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return stratadb.NewError(stratadb.Unknown, fmt.Errorf("datanode: encode request: %w", err))
	}
	url := fmt.Sprintf("http://%s%s", c.peer.Addr, path)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return stratadb.NewError(stratadb.Transient, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return stratadb.NewError(stratadb.Transient, fmt.Errorf("datanode %s: %w", c.peer, err))
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode == http.StatusConflict {
		return stratadb.NewError(stratadb.TargetRejected, fmt.Errorf("datanode %s rejected request on %s", c.peer, path))
	}
	if httpResp.StatusCode >= 500 {
		return stratadb.NewError(stratadb.Transient, fmt.Errorf("datanode %s returned %d on %s", c.peer, httpResp.StatusCode, path))
	}
	if httpResp.StatusCode >= 400 {
		return stratadb.NewError(stratadb.InvalidArguments, fmt.Errorf("datanode %s returned %d on %s", c.peer, httpResp.StatusCode, path))
	}
	if resp == nil {
		return nil
	}
	return json.NewDecoder(httpResp.Body).Decode(resp)
}

func (c *HTTPClient) OpenRegion(ctx context.Context, tok Token, role Role) (uint64, error) {
	var resp openRegionResponse
	err := c.post(ctx, "/v1/regions/open", openRegionRequest{Token: tok, Role: role}, &resp)
	return resp.OpenedAt, err
}

func (c *HTTPClient) CloseRegion(ctx context.Context, tok Token) error {
	return c.post(ctx, "/v1/regions/close", tok, nil)
}

func (c *HTTPClient) RegionManifest(ctx context.Context, tok Token) (Manifest, error) {
	var m Manifest
	err := c.post(ctx, "/v1/regions/manifest", tok, &m)
	return m, err
}

func (c *HTTPClient) SetLease(ctx context.Context, tok Token, lease LeaseState) error {
	return c.post(ctx, "/v1/regions/lease", setLeaseRequest{Token: tok, Lease: lease}, nil)
}

func (c *HTTPClient) InvalidateCache(ctx context.Context, tok Token) error {
	return c.post(ctx, "/v1/regions/invalidate-cache", tok, nil)
}

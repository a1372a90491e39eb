// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// HTTPClient is the real Client implementation, a thin wrapper around
// net/http: one struct holding a base URL, an API key, and a *http.Client,
// with every call injecting the same header set.
type HTTPClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPClient builds an HTTPClient with http.DefaultClient if hc is nil.
func NewHTTPClient(baseURL, apiKey string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &HTTPClient{BaseURL: baseURL, APIKey: apiKey, HTTP: hc}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, headers Headers) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers.ToHTTPHeaders() {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}

// decodeDetail reads a non-2xx body into a Detail, classifying quota-limit
// 403s by the presence of a "quota" substring in the server's payload.
func decodeDetail(resp *http.Response) *Detail {
	d := &Detail{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, d)
	d.StatusCode = resp.StatusCode
	if resp.StatusCode == http.StatusForbidden && bytes.Contains(bytes.ToLower(raw), []byte("quota")) {
		d.QuotaLimit = true
	}
	return d
}

type scanRequest struct {
	Documents  []Document `json:"documents"`
	AllSecrets bool       `json:"all_secrets,omitempty"`
	SourceUUID string     `json:"source_uuid,omitempty"`
}

func (c *HTTPClient) MultiContentScan(ctx context.Context, docs []Document, headers Headers, allSecrets bool) (*MultiScanResult, *Detail, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/multiscan", scanRequest{Documents: docs, AllSecrets: allSecrets}, headers)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, decodeDetail(resp), nil
	}
	var out MultiScanResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("decoding multiscan response: %w", err)
	}
	return &out, nil, nil
}

func (c *HTTPClient) ScanAndCreateIncidents(ctx context.Context, docs []Document, sourceUUID string, headers Headers) (*MultiScanResult, *Detail, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/scan/create-incidents", scanRequest{Documents: docs, SourceUUID: sourceUUID, AllSecrets: true}, headers)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, decodeDetail(resp), nil
	}
	var out MultiScanResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("decoding scan-and-create-incidents response: %w", err)
	}
	return &out, nil, nil
}

func (c *HTTPClient) APITokens(ctx context.Context) (*APITokensResponse, *Detail, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/api_tokens", nil, Headers{})
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, decodeDetail(resp), nil
	}
	var out APITokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("decoding api_tokens response: %w", err)
	}
	return &out, nil, nil
}

func (c *HTTPClient) ReadMetadata(ctx context.Context) (*SecretScanPreferences, *Detail, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/metadata", nil, Headers{})
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, decodeDetail(resp), nil
	}
	prefs := &SecretScanPreferences{}
	if h := resp.Header.Get("X-Maximum-Documents-Per-Scan"); h != "" {
		prefs.MaximumDocumentsPerScan, _ = strconv.Atoi(h)
	}
	if h := resp.Header.Get("X-Maximum-Document-Size"); h != "" {
		prefs.MaximumDocumentSize, _ = strconv.Atoi(h)
	}
	if h := resp.Header.Get("X-Maximum-Payload-Size"); h != "" {
		prefs.MaximumPayloadSize, _ = strconv.Atoi(h)
	}
	_ = json.NewDecoder(resp.Body).Decode(prefs)
	return prefs, nil, nil
}

func (c *HTTPClient) RetrieveSecretIncident(ctx context.Context, id string, withOccurrences int) (*SecretIncident, *Detail, error) {
	path := fmt.Sprintf("/v1/incidents/secrets/%s?with_occurrences=%d", id, withOccurrences)
	resp, err := c.do(ctx, http.MethodGet, path, nil, Headers{})
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, decodeDetail(resp), nil
	}
	var out SecretIncident
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil, fmt.Errorf("decoding secret incident response: %w", err)
	}
	return &out, nil, nil
}

var _ Client = (*HTTPClient)(nil)

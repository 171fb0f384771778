// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package activityfeed is the thin HTTP client the page-discovery and
// blob-fetch stages use to talk to the Office 365 Management Activity
// API. It does no pagination or decoding of its own — each call fetches
// exactly one page or one blob and hands the raw body back to the
// caller, which owns the protocol (NextPageUri handling, JSON decode,
// throttle detection).
package activityfeed

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bcem/auditcollector/internal/auth"
)

const (
	pageFetchTimeout = 5 * time.Second
	blobFetchTimeout = 3 * time.Second
)

// Client issues single-page and single-blob fetches against the
// Management Activity API using an already-authenticated transport.
type Client struct {
	auth *auth.Context
}

// NewClient builds a Client bound to an authenticated context.
func NewClient(authCtx *auth.Context) *Client {
	return &Client{auth: authCtx}
}

// PageResponse is the raw result of fetching one feed page.
type PageResponse struct {
	StatusCode  int
	Body        []byte
	NextPageURI string
}

// FetchPage issues a 5-second-timeout GET against a feed page URL and
// returns the raw body plus any NextPageUri response header. It does
// not interpret the status code or body — that is the discovery
// stage's job.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (PageResponse, error) {
	req, cancel, err := c.auth.NewRequest(ctx, http.MethodGet, pageURL, pageFetchTimeout)
	if err != nil {
		return PageResponse{}, err
	}
	defer cancel()

	resp, err := c.auth.HTTPClient().Do(req)
	if err != nil {
		return PageResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return PageResponse{StatusCode: resp.StatusCode}, err
	}

	return PageResponse{
		StatusCode:  resp.StatusCode,
		Body:        body,
		NextPageURI: resp.Header.Get("NextPageUri"),
	}, nil
}

// BlobResponse is the raw result of fetching one content blob.
type BlobResponse struct {
	StatusCode int
	Body       []byte
}

// FetchBlob issues a 3-second-timeout GET against a content blob URL.
func (c *Client) FetchBlob(ctx context.Context, blobURL string) (BlobResponse, error) {
	req, cancel, err := c.auth.NewRequest(ctx, http.MethodGet, blobURL, blobFetchTimeout)
	if err != nil {
		return BlobResponse{}, err
	}
	defer cancel()

	resp, err := c.auth.HTTPClient().Do(req)
	if err != nil {
		return BlobResponse{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return BlobResponse{StatusCode: resp.StatusCode}, err
	}

	return BlobResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

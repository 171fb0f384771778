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

// Package auth holds the bearer credential used to authenticate every
// request the pipeline makes against the Office 365 Management Activity
// API. The OAuth2 exchange itself is treated as an opaque dependency —
// failure of it is fatal to the run.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2/clientcredentials"
)

const resource = "https://manage.office.com"

// Context holds the credential and tenant identity needed to build
// authenticated requests. Headers are cloned per outgoing request and
// are never rotated mid-run.
type Context struct {
	TenantID string
	client   *http.Client
}

// Login exchanges tenant/client credentials for a bearer token via the
// OAuth2 client-credentials grant. The token exchange is retried with
// bounded backoff before being treated as fatal-init.
func Login(ctx context.Context, tenantID, clientID, clientSecret string) (*Context, error) {
	cc := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/token", tenantID),
		EndpointParams: map[string][]string{
			"resource": {resource},
		},
	}

	httpClient, err := backoff.Retry(ctx, func() (*http.Client, error) {
		c := cc.Client(ctx)
		if _, err := cc.Token(ctx); err != nil {
			return nil, fmt.Errorf("exchange client-credentials token: %w", err)
		}
		return c, nil
	}, backoff.WithMaxTries(3), backoff.WithBackOff(backoff.NewExponentialBackOff()))
	if err != nil {
		return nil, fmt.Errorf("login to Office Management API: %w", err)
	}

	return &Context{TenantID: tenantID, client: httpClient}, nil
}

// NewWithClient builds a Context around an already-built HTTP client,
// bypassing the OAuth2 exchange. Used by tests that need an
// authenticated-looking Context without a real identity provider.
func NewWithClient(tenantID string, client *http.Client) *Context {
	return &Context{TenantID: tenantID, client: client}
}

// Headers returns a fresh clone of the authenticated header set, safe to
// mutate by the caller of a single outgoing request.
func (c *Context) Headers() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	return h
}

// HTTPClient returns the OAuth2-wrapped client used for every fetch. The
// same client is reused for the lifetime of the run; its underlying
// transport refreshes the bearer token transparently on expiry.
func (c *Context) HTTPClient() *http.Client {
	return c.client
}

// NewRequest builds an authenticated request with the given timeout.
func (c *Context) NewRequest(ctx context.Context, method, url string, timeout time.Duration) (*http.Request, context.CancelFunc, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	req, err := http.NewRequestWithContext(reqCtx, method, url, nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = c.Headers()
	return req, cancel, nil
}

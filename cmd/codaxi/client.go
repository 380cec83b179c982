// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
)

// apiClient talks to a running `codaxi serve`.
type apiClient struct {
	base string
	http *http.Client
}

// newAPIClient accepts a URL or a listen address such as ":8080".
func newAPIClient(server string) *apiClient {
	base := strings.TrimRight(strings.TrimSpace(server), "/")
	if strings.HasPrefix(base, ":") {
		base = "localhost" + base
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{base: base, http: &http.Client{Timeout: 30 * time.Second}}
}

// apiEnvelope mirrors output.Envelope with a raw payload.
type apiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// do sends body (if any) and decodes the envelope data into out.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return cxerrors.NewNetworkError(
			"Cannot reach the Codaxi server",
			err.Error(),
			"Start it with 'codaxi serve' or pass --server",
			err,
		)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(&env); err != nil {
		return fmt.Errorf("decode %s %s response (HTTP %d): %w", method, path, resp.StatusCode, err)
	}
	if !env.Success {
		return apiError(resp.StatusCode, env.Error)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

// apiError turns an error envelope into a UserError with a matching exit code.
func apiError(status int, msg string) error {
	switch {
	case status == http.StatusNotFound:
		return cxerrors.NewNotFoundError("Not found", msg, "Check the id with 'codaxi scans' or 'codaxi docs'")
	case status >= 400 && status < 500:
		return cxerrors.NewInputError("Request rejected", msg, "")
	default:
		return cxerrors.NewNetworkError("Server error", fmt.Sprintf("HTTP %d: %s", status, msg), "Check the server logs", nil)
	}
}

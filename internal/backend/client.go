/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vidskel/internal/dnd"
	"vidskel/internal/domain"
	"vidskel/internal/movement"
)

// Client talks to a running server.
type Client struct {
	BaseURL string
	client  *http.Client
}

// NewClient creates a client. A trailing slash on baseURL is ignored; a
// timeout <= 0 means 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// StatusError is returned for non-2xx answers the caller did not expect.
type StatusError struct {
	Method string
	Path   string
	Status int
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("server %s %s: %d %s", e.Method, e.Path, e.Status, e.Msg)
	}
	return fmt.Sprintf("server %s %s: %d", e.Method, e.Path, e.Status)
}

// doJSON sends body as JSON and decodes the answer into dest. Statuses listed
// in accept are decoded like 2xx.
func (c *Client) doJSON(ctx context.Context, method, path string, body, dest any, accept ...int) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, s := range accept {
		ok = ok || resp.StatusCode == s
	}
	if !ok {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&e)
		return &StatusError{Method: method, Path: u.Path, Status: resp.StatusCode, Msg: e.Error}
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

func (c *Client) getText(ctx context.Context, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Msg: strings.TrimSpace(string(b))}
	}
	return strings.TrimSpace(string(b)), nil
}

// Version returns the server build version.
func (c *Client) Version(ctx context.Context) (string, error) { return c.getText(ctx, "/version") }

// Ready reports nil when the server and its storage answer.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.getText(ctx, "/readyz")
	return err
}

func (c *Client) ListSkeletons(ctx context.Context) (SkeletonList, error) {
	var out SkeletonList
	err := c.doJSON(ctx, http.MethodGet, "/api/skeletons", nil, &out)
	return out, err
}

func (c *Client) GetSkeleton(ctx context.Context, id string) (domain.Skeleton, error) {
	var out domain.Skeleton
	err := c.doJSON(ctx, http.MethodGet, skPath(id), nil, &out)
	return out, err
}

func (c *Client) CreateSkeleton(ctx context.Context, req CreateSkeletonRequest) (domain.Skeleton, error) {
	var out domain.Skeleton
	err := c.doJSON(ctx, http.MethodPost, "/api/skeletons", req, &out)
	return out, err
}

// MoveFrame returns the engine result for legal and illegal moves alike.
func (c *Client) MoveFrame(ctx context.Context, skeletonID, frameID string, dir movement.Direction) (movement.Result, error) {
	var out movement.Result
	err := c.doJSON(ctx, http.MethodPost, skPath(skeletonID)+"/frames/"+url.PathEscape(frameID)+"/move",
		MoveRequest{Direction: string(dir)}, &out, http.StatusConflict)
	return out, err
}

func (c *Client) Drop(ctx context.Context, d dnd.Drop) (dnd.Outcome, error) {
	var out dnd.Outcome
	err := c.doJSON(ctx, http.MethodPost, skPath(d.SkeletonID)+"/drop", d, &out)
	return out, err
}

func (c *Client) Undo(ctx context.Context, skeletonID string) (HistoryResponse, error) {
	var out HistoryResponse
	err := c.doJSON(ctx, http.MethodPost, skPath(skeletonID)+"/undo", nil, &out)
	return out, err
}

func (c *Client) Redo(ctx context.Context, skeletonID string) (HistoryResponse, error) {
	var out HistoryResponse
	err := c.doJSON(ctx, http.MethodPost, skPath(skeletonID)+"/redo", nil, &out)
	return out, err
}

func (c *Client) Script(ctx context.Context, skeletonID string, apply bool) (ScriptResponse, error) {
	var out ScriptResponse
	err := c.doJSON(ctx, http.MethodPost, skPath(skeletonID)+"/script", ScriptRequest{Apply: apply}, &out)
	return out, err
}

func skPath(id string) string { return "/api/skeletons/" + url.PathEscape(id) }

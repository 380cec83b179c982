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

package llm

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const (
	retryStep     = 2 * time.Second
	retryMaxDelay = 8 * time.Second
)

// RetryDelay returns the wait before retry number attempt (0-based):
// min(2s*(attempt+1), 8s).
func RetryDelay(attempt int) time.Duration {
	d := retryStep * time.Duration(attempt+1)
	if d > retryMaxDelay {
		return retryMaxDelay
	}
	return d
}

type retryProvider struct {
	inner      Provider
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps p so that failed calls are retried up to maxRetries times
// with a linear capped delay. Client errors (4xx other than 408 and 429) and
// context cancellation are returned immediately.
func WithRetry(p Provider, maxRetries int) Provider {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &retryProvider{inner: p, maxRetries: maxRetries, sleep: sleepCtx}
}

func (r *retryProvider) Name() string { return r.inner.Name() }

func (r *retryProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			metrics().retries.WithLabelValues(r.inner.Name()).Inc()
			if err := r.sleep(ctx, RetryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		resp, err := r.inner.Chat(ctx, req)
		metrics().latency.WithLabelValues(r.inner.Name()).Observe(time.Since(start).Seconds())
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
	}
	metrics().failures.WithLabelValues(r.inner.Name()).Inc()
	return nil, lastErr
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusRequestTimeout, se.StatusCode == http.StatusTooManyRequests:
			return true
		case se.StatusCode >= 400 && se.StatusCode < 500:
			return false
		}
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

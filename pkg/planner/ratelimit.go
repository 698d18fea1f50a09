/*
Copyright 2026 The Modvault Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package planner

import (
	"context"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// rateLimitedTransport throttles response-body reads to a configured
// bytes-per-second rate, wrapping whatever RoundTripper the caller's
// client already uses. Unused unless AppConfig.FetchRateLimitKBps is set
// (spec.md distillation drops bandwidth shaping; the teacher's dependency
// graph carries golang.org/x/time for exactly this kind of egress cap on
// blob sync, so this repo gives it a home too).
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func newRateLimitedClient(base *http.Client, kbps int) *http.Client {
	if kbps <= 0 {
		if base != nil {
			return base
		}
		return http.DefaultClient
	}
	if base == nil {
		base = http.DefaultClient
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	c := *base
	// Burst must be at least as large as io.Copy's default read buffer
	// (32KiB) or WaitN rejects any single read outright.
	burst := kbps * 1024
	if burst < 64*1024 {
		burst = 64 * 1024
	}
	c.Transport = &rateLimitedTransport{
		base:    rt,
		limiter: rate.NewLimiter(rate.Limit(kbps*1024), burst),
	}
	return &c
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.Body == nil {
		return resp, err
	}
	resp.Body = &rateLimitedBody{ctx: req.Context(), rc: resp.Body, limiter: t.limiter}
	return resp, nil
}

type rateLimitedBody struct {
	ctx     context.Context
	rc      io.ReadCloser
	limiter *rate.Limiter
}

func (b *rateLimitedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		if waitErr := b.limiter.WaitN(b.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}

func (b *rateLimitedBody) Close() error { return b.rc.Close() }

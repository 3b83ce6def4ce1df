// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/Akash-916024/ai-note-taker/internal/core/gateways"
)

// ErrQuotaWait is returned when a request gave up waiting for model quota.
var ErrQuotaWait = errors.New("gave up waiting for model quota")

// httpCode extracts the HTTP status code of a Google API error, or 0.
func httpCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

// statusFor maps a provider error onto the gateway statuses shared by every
// adapter. Adapters refine the result for the codes their contract treats
// differently.
func statusFor(err error) gateways.Status {
	if err == nil {
		return gateways.StatusOK
	}
	var blocked *BlockedError
	if errors.As(err, &blocked) {
		return gateways.StatusContentBlocked
	}
	if errors.Is(err, ErrQuotaWait) {
		return gateways.StatusRateLimited
	}
	switch code := httpCode(err); {
	case code == http.StatusNotFound:
		return gateways.StatusNotFound
	case code == http.StatusTooManyRequests:
		return gateways.StatusRateLimited
	case code == http.StatusRequestTimeout || code >= http.StatusInternalServerError:
		return gateways.StatusTransient
	case code != 0:
		return gateways.StatusFatal
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return gateways.StatusTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return gateways.StatusTransient
	}
	return gateways.StatusFatal
}

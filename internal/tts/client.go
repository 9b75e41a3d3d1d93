// Package tts provides the synthesis client: typed provider failures, the
// retry/backoff policy, credentials, and HTTP adapters for Google's Gemini and
// Cloud Text-to-Speech APIs.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errBaseURLEmpty         = "base url cannot be empty"
	errFmtFailedToMarshal   = "failed to marshal request: %w"
	errFmtFailedToCreateReq = "failed to create request: %w"
	errUndecodableBody      = "undecodable response body"
)

// maxErrorBodyBytes caps how much of a non-JSON error body is kept.
const maxErrorBodyBytes = 4096

// ErrContentEmpty is returned for a request without content.
var ErrContentEmpty = errors.New("content cannot be empty")

// googleErrorResponse is the error envelope used by Google APIs.
type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// httpProvider holds the transport shared by the provider adapters.
type httpProvider struct {
	httpClient *http.Client
	baseURL    string
	credential Credential
}

func newHTTPProvider(baseURL string, timeout time.Duration, credential Credential) (httpProvider, error) {
	if baseURL == "" {
		return httpProvider{}, errors.New(errBaseURLEmpty)
	}

	if credential == nil {
		return httpProvider{}, ErrNoCredential
	}

	return httpProvider{
		baseURL:    baseURL,
		credential: credential,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// postJSON sends payload and decodes a 200 response into target. Every failure
// comes back as a *SynthesisError.
func (p httpProvider) postJSON(ctx context.Context, url string, payload, target any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return newFailure(FailureMalformedResponse, 0, "", fmt.Errorf(errFmtFailedToMarshal, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return newFailure(FailureNetwork, 0, "", fmt.Errorf(errFmtFailedToCreateReq, err))
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)

	return p.do(ctx, httpReq, target)
}

// getJSON issues an authorized GET and decodes a 200 response into target.
func (p httpProvider) getJSON(ctx context.Context, url string, target any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return newFailure(FailureNetwork, 0, "", fmt.Errorf(errFmtFailedToCreateReq, err))
	}

	return p.do(ctx, httpReq, target)
}

func (p httpProvider) do(ctx context.Context, httpReq *http.Request, target any) error {
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	credErr := p.credential.Apply(ctx, httpReq)
	if credErr != nil {
		if KindOf(credErr) != 0 {
			return credErr
		}

		return newFailure(FailureAuth, 0, "", credErr)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return newFailure(FailureNetwork, 0, "", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return newFailure(FailureNetwork, resp.StatusCode, "failed to read response body", readErr)
	}

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp.StatusCode, body)
	}

	parseErr := parseJSON(body, target)
	if parseErr != nil {
		return newFailure(FailureMalformedResponse, resp.StatusCode, errUndecodableBody, parseErr)
	}

	return nil
}

// parseErrorResponse builds a typed failure from a non-200 response, keeping the
// provider's own message when the body is a Google error envelope and a
// truncated raw body otherwise.
func parseErrorResponse(statusCode int, body []byte) error {
	kind := kindForStatus(statusCode)

	var errorResp googleErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Error.Message != "" {
		detail := errorResp.Error.Message
		if errorResp.Error.Status != "" {
			detail = fmt.Sprintf("%s: %s", errorResp.Error.Status, detail)
		}

		return newFailure(kind, statusCode, detail, nil)
	}

	if len(body) > maxErrorBodyBytes {
		body = body[:maxErrorBodyBytes]
	}

	return newFailure(kind, statusCode, string(bytes.TrimSpace(body)), nil)
}

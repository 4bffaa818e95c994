package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the idverify authentication service. It handles
// the unauthenticated endpoints and mints Sessions for everything else.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Register creates a new account. The account can log in immediately; MFA
// enrollment is a separate, post-login step.
func (c *SDKClient) Register(ctx context.Context, email, username, password string) (UserResponse, error) {
	var user UserResponse
	err := c.postJSON(ctx, "/v1/auth/register", RegisterRequest{
		Email:    email,
		Username: username,
		Password: password,
	}, &user, http.StatusCreated)
	return user, err
}

// Login authenticates with a password. When the account requires MFA the
// returned error is a *MFARequiredError carrying the challenge token for
// CompleteMFA; no Session exists until the challenge is redeemed.
func (c *SDKClient) Login(ctx context.Context, identifier, password string) (*Session, error) {
	var tokens TokenResponse
	err := c.postJSON(ctx, "/v1/auth/login", LoginRequest{
		Identifier: identifier,
		Password:   password,
	}, &tokens, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// CompleteMFA redeems a login challenge with a TOTP or backup code.
func (c *SDKClient) CompleteMFA(ctx context.Context, mfaToken, code string) (*Session, error) {
	var tokens TokenResponse
	err := c.postJSON(ctx, "/v1/auth/mfa/complete", MFACompleteRequest{
		MFAToken: mfaToken,
		Code:     code,
	}, &tokens, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// NewSessionFromTokens rebuilds a Session from stored tokens, e.g. after a
// process restart. Auto-refresh still applies.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresIn int) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    time.Now().Add(time.Duration(expiresIn)*time.Second - refreshSkew),
	}
}

// Health calls the liveness endpoint.
func (c *SDKClient) Health(ctx context.Context) (HealthResponse, error) {
	var health HealthResponse
	resp, err := c.doRequest(ctx, http.MethodGet, "/livez", nil, nil)
	if err != nil {
		return HealthResponse{}, err
	}
	err = decodeJSON(resp, &health, http.StatusOK)
	return health, err
}

func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// doRequest performs an unauthenticated HTTP request.
func (c *SDKClient) doRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// postJSON sends a JSON body and decodes a JSON response.
func (c *SDKClient) postJSON(ctx context.Context, path string, reqBody, target any, expectedStatus int) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	resp, err := c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(payload),
		map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, expectedStatus)
}

// decodeJSON decodes a JSON response into target, turning non-2xx responses
// into typed errors (APIError or MFARequiredError).
func decodeJSON(resp *http.Response, target any, expectedStatus int) error {
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		return parseErrorResponse(resp, bodyBytes)
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkStatusNoContent returns a typed error unless the response is 204.
func checkStatusNoContent(resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return parseErrorResponse(resp, bodyBytes)
	}
	return nil
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// GatewayClient delivers messages through an HTTP WhatsApp gateway.
// The gateway accepts a JSON POST and answers with conventional status
// codes, which map directly onto the transient/permanent split.
type GatewayClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewGatewayClient creates a gateway-backed provider. The request
// deadline comes from the caller's context; httpClient may be nil.
func NewGatewayClient(url, apiKey string, httpClient *http.Client) *GatewayClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GatewayClient{
		url:    url,
		apiKey: apiKey,
		client: httpClient,
	}
}

func (c *GatewayClient) Name() string {
	return "gateway"
}

type gatewayRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

type gatewayResponse struct {
	Error string `json:"error"`
}

// Send posts one message to the gateway
func (c *GatewayClient) Send(ctx context.Context, target, message string) error {
	body, err := json.Marshal(gatewayRequest{To: target, Message: message})
	if err != nil {
		return Permanent("failed to encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Permanent("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		// Covers timeouts and connection failures.
		return Transient("gateway unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	detail := gatewayErrorDetail(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Transient("gateway rate limit", fmt.Errorf("status %d: %s", resp.StatusCode, detail))
	case resp.StatusCode == http.StatusRequestTimeout:
		return Transient("gateway timeout", fmt.Errorf("status %d: %s", resp.StatusCode, detail))
	case resp.StatusCode >= 500:
		return Transient("gateway error", fmt.Errorf("status %d: %s", resp.StatusCode, detail))
	default:
		// 4xx other than 408/429: bad destination, rejected content,
		// bad credentials. Retrying will not help.
		return Permanent("gateway rejected message", fmt.Errorf("status %d: %s", resp.StatusCode, detail))
	}
}

func gatewayErrorDetail(body io.Reader) string {
	var gr gatewayResponse
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&gr); err != nil || gr.Error == "" {
		return "no detail"
	}
	return gr.Error
}

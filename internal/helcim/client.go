package helcim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// requestTimeout bounds every processor call. Blind retries against a
// payment processor risk duplicate charges, so on timeout the operation
// fails and retry policy stays with the caller.
const requestTimeout = 30 * time.Second

// UpstreamError reports a processor call that failed or returned a non-2xx
// response. StatusCode is zero when the processor was unreachable.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("payment processor unreachable: %s", e.Message)
	}
	return fmt.Sprintf("payment processor returned %d: %s", e.StatusCode, e.Message)
}

// Client is a thin HTTP client for the payment processor API. It holds the
// server-side API token; nothing issued through this client other than the
// checkout token may be exposed to the browser.
type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
}

// NewClient returns a Client for the given API base URL and token.
func NewClient(baseURL, apiToken string) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		http:     &http.Client{Timeout: requestTimeout},
	}
}

// InitializeRequest opens a checkout transaction for one invoice.
type InitializeRequest struct {
	Amount             json.Number `json:"amount"`
	Currency           string      `json:"currency"`
	CustomerCode       string      `json:"customerCode"`
	InvoiceNumber      string      `json:"invoiceNumber"`
	PaymentMethod      string      `json:"paymentMethod"`
	HasConvenienceFee  int         `json:"hasConvenienceFee"`
	ConfirmationScreen bool        `json:"confirmationScreen"`
	ReturnURL          string      `json:"returnUrl"`
	CancelURL          string      `json:"cancelUrl"`
}

// InitializeResponse carries the two tokens issued per checkout attempt.
// CheckoutToken is safe to hand to the client; SecretToken must stay on the
// server.
type InitializeResponse struct {
	CheckoutToken string `json:"checkoutToken"`
	SecretToken   string `json:"secretToken"`
}

// Initialize opens a payment transaction with the processor.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (InitializeResponse, error) {
	var resp InitializeResponse
	if err := c.post(ctx, "/helcim-pay/initialize", req, &resp); err != nil {
		return InitializeResponse{}, err
	}
	if resp.CheckoutToken == "" || resp.SecretToken == "" {
		return InitializeResponse{}, &UpstreamError{StatusCode: http.StatusOK, Message: "initialize response missing tokens"}
	}
	return resp, nil
}

// VerifyHash asks the processor for its own hash of the checkout token and
// secret pair. This server-to-server call is the second, independent factor
// of payment validation.
func (c *Client) VerifyHash(ctx context.Context, checkoutToken, secretToken string) (string, error) {
	body := map[string]string{
		"checkoutToken": checkoutToken,
		"secretToken":   secretToken,
	}
	var resp struct {
		Hash string `json:"hash"`
	}
	if err := c.post(ctx, "/helcim-pay/verify", body, &resp); err != nil {
		return "", err
	}
	if resp.Hash == "" {
		return "", &UpstreamError{StatusCode: http.StatusOK, Message: "verify response missing hash"}
	}
	return resp.Hash, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-token", c.apiToken)

	res, err := c.http.Do(req)
	if err != nil {
		return &UpstreamError{Message: err.Error()}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return &UpstreamError{StatusCode: res.StatusCode, Message: err.Error()}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &UpstreamError{StatusCode: res.StatusCode, Message: upstreamMessage(data)}
	}
	return json.Unmarshal(data, out)
}

// upstreamMessage extracts a short human summary from a processor error
// body. Raw processor text is never passed through to customers; this
// summary is for operator diagnostics only.
func upstreamMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return "unexpected response"
}

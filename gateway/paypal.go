package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avelychko/bookmarket-backend/metrics"
)

const (
	sandboxBaseURL = "https://api.sandbox.paypal.com"
	liveBaseURL    = "https://api.paypal.com"

	// Refresh the OAuth token slightly before the provider expires it.
	tokenExpirySlack = 60 * time.Second
)

// PayPalClient implements Gateway against the PayPal REST payments API.
type PayPalClient struct {
	baseURL  string
	clientID string
	secret   string
	client   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClient builds a client for the given mode ("sandbox" or "live").
func NewPayPalClient(mode, clientID, secret string) *PayPalClient {
	baseURL := sandboxBaseURL
	if strings.EqualFold(mode, "live") {
		baseURL = liveBaseURL
	}
	return &PayPalClient{
		baseURL:  baseURL,
		clientID: clientID,
		secret:   secret,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// NewPayPalClientWithBaseURL is used by tests to point the client at a stub server.
func NewPayPalClientWithBaseURL(baseURL, clientID, secret string) *PayPalClient {
	c := NewPayPalClient("sandbox", clientID, secret)
	c.baseURL = baseURL
	return c
}

type paypalAmount struct {
	Total    string `json:"total"`
	Currency string `json:"currency"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalErrorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// CreatePayment registers a redirect-approval payment and returns its id and
// approval URL.
func (c *PayPalClient) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatedPayment, error) {
	body := map[string]interface{}{
		"intent": "sale",
		"payer":  map[string]string{"payment_method": "paypal"},
		"transactions": []map[string]interface{}{{
			"amount": paypalAmount{
				Total:    req.Amount.StringFixed(2),
				Currency: req.Currency,
			},
			"description": req.Description,
		}},
		"redirect_urls": map[string]string{
			"return_url": req.ReturnURL,
			"cancel_url": req.CancelURL,
		},
	}

	var created struct {
		ID    string       `json:"id"`
		Links []paypalLink `json:"links"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/payments/payment", body, &created); err != nil {
		metrics.GatewayRequests.WithLabelValues("create", "error").Inc()
		return nil, err
	}
	metrics.GatewayRequests.WithLabelValues("create", "ok").Inc()

	for _, link := range created.Links {
		if link.Rel == "approval_url" {
			return &CreatedPayment{PaymentID: created.ID, ApprovalURL: link.Href}, nil
		}
	}
	return nil, fmt.Errorf("%w: payment %s has no approval_url link", ErrProvider, created.ID)
}

// ExecutePayment captures an approved payment on behalf of the payer.
func (c *PayPalClient) ExecutePayment(ctx context.Context, paymentID, payerID string) error {
	body := map[string]string{"payer_id": payerID}
	path := fmt.Sprintf("/v1/payments/payment/%s/execute", url.PathEscape(paymentID))
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		metrics.GatewayRequests.WithLabelValues("execute", "error").Inc()
		return err
	}
	metrics.GatewayRequests.WithLabelValues("execute", "ok").Inc()
	return nil
}

// Refund reverses an executed payment. The REST API refunds sales, not
// payments, so the related sale id is resolved first.
func (c *PayPalClient) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, currency string) error {
	saleID, err := c.saleID(ctx, paymentID)
	if err != nil {
		metrics.GatewayRequests.WithLabelValues("refund", "error").Inc()
		return err
	}

	body := map[string]interface{}{
		"amount": paypalAmount{Total: amount.StringFixed(2), Currency: currency},
	}
	path := fmt.Sprintf("/v1/payments/sale/%s/refund", url.PathEscape(saleID))
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		metrics.GatewayRequests.WithLabelValues("refund", "error").Inc()
		return err
	}
	metrics.GatewayRequests.WithLabelValues("refund", "ok").Inc()
	return nil
}

func (c *PayPalClient) saleID(ctx context.Context, paymentID string) (string, error) {
	var payment struct {
		Transactions []struct {
			RelatedResources []struct {
				Sale *struct {
					ID string `json:"id"`
				} `json:"sale"`
			} `json:"related_resources"`
		} `json:"transactions"`
	}
	path := fmt.Sprintf("/v1/payments/payment/%s", url.PathEscape(paymentID))
	if err := c.do(ctx, http.MethodGet, path, nil, &payment); err != nil {
		return "", err
	}
	for _, txn := range payment.Transactions {
		for _, res := range txn.RelatedResources {
			if res.Sale != nil && res.Sale.ID != "" {
				return res.Sale.ID, nil
			}
		}
	}
	return "", fmt.Errorf("%w: payment %s has no related sale", ErrProvider, paymentID)
}

// do performs an authorized JSON request, retrying once after a token refresh
// on 401.
func (c *PayPalClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.token(ctx, attempt > 0)
		if err != nil {
			return err
		}

		status, respBody, err := c.roundTrip(ctx, method, path, token, body)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			continue
		}
		if status < 200 || status > 299 {
			var perr paypalErrorBody
			if json.Unmarshal(respBody, &perr) == nil && perr.Name != "" {
				return fmt.Errorf("%w: %s: %s", ErrProvider, perr.Name, perr.Message)
			}
			return fmt.Errorf("%w: unexpected status %d", ErrProvider, status)
		}
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode provider response: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("%w: authorization rejected", ErrProvider)
}

func (c *PayPalClient) roundTrip(ctx context.Context, method, path, token string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// token returns a cached OAuth access token, fetching a new one when missing,
// expired, or when force is set.
func (c *PayPalClient) token(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token request returned %d", ErrProvider, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrProvider)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySlack)
	return c.accessToken, nil
}

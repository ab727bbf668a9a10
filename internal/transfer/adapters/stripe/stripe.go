package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/partnerly/internal/transfer/domain"
)

const defaultBaseURL = "https://api.stripe.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "stripe"
}

func (f *Factory) NewClient(cfg domain.ClientConfig) (domain.Client, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := strings.TrimSpace(cfg.APIBaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		secretKey: secret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type Client struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
}

func (c *Client) Provider() string {
	return "stripe"
}

func (c *Client) CreateTransfer(ctx context.Context, req domain.Request) (*domain.Result, error) {
	if req.AmountCents <= 0 || strings.TrimSpace(req.Currency) == "" {
		return nil, domain.ErrInvalidRequest
	}
	destination := strings.TrimSpace(req.DestinationID)
	if destination == "" {
		return nil, domain.ErrInvalidRequest
	}
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		return nil, domain.ErrInvalidRequest
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountCents, 10))
	form.Set("currency", strings.ToLower(strings.TrimSpace(req.Currency)))
	form.Set("destination", destination)
	for key, value := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr stripeError
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("%w: %s", domain.ErrTransferFailed, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("%w: status %d", domain.ErrTransferFailed, resp.StatusCode)
	}

	var transfer stripeTransfer
	if err := json.Unmarshal(body, &transfer); err != nil {
		return nil, err
	}
	if strings.TrimSpace(transfer.ID) == "" {
		return nil, domain.ErrTransferFailed
	}

	return &domain.Result{TransferID: transfer.ID}, nil
}

type stripeTransfer struct {
	ID string `json:"id"`
}

type stripeError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

package ledgergw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"gigpay-backend/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// HTTPGateway talks to the ledger service over JSON/HTTP. Every call is
// bounded by the configured attempt timeout; exceeding it is reported as
// transient so the payment executor can retry.
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type HTTPGatewayParams struct {
	fx.In
	Config *config.Config
}

func NewHTTPGateway(p HTTPGatewayParams) Gateway {
	return &HTTPGateway{
		baseURL: p.Config.Ledger.BaseURL,
		apiKey:  p.Config.Ledger.APIKey,
		client: &http.Client{
			Timeout: p.Config.Ledger.AttemptTimeout,
		},
	}
}

type transferPayload struct {
	FromWallet  string `json:"from_wallet"`
	ToWallet    string `json:"to_wallet"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference"`
}

type transferResponse struct {
	TransferID string `json:"transfer_id"`
	StatusRef  string `json:"status_ref"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

func (g *HTTPGateway) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	body, err := json.Marshal(transferPayload{
		FromWallet:  req.FromWallet,
		ToWallet:    req.ToWallet,
		AmountCents: req.AmountCents,
		Reference:   req.Reference,
	})
	if err != nil {
		return nil, err
	}

	var out transferResponse
	if err := g.do(ctx, http.MethodPost, "/v1/transfers", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}

	return &TransferResult{
		TransferID: out.TransferID,
		StatusRef:  out.StatusRef,
		Status:     TransferStatus(out.Status),
	}, nil
}

func (g *HTTPGateway) GetStatus(ctx context.Context, transferID string) (TransferStatus, error) {
	var out transferResponse
	path := fmt.Sprintf("/v1/transfers/%s", transferID)
	if err := g.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return "", err
	}
	return TransferStatus(out.Status), nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		// Covers timeouts, DNS failures, connection resets.
		return Transient(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transient(err)
	}

	switch {
	case resp.StatusCode >= 500:
		zap.L().Warn("ledger returned server error",
			zap.Int("status", resp.StatusCode),
			zap.String("path", path),
		)
		return Transient(fmt.Errorf("ledger responded %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		var fail transferResponse
		_ = json.Unmarshal(data, &fail)
		if fail.Message != "" {
			return fmt.Errorf("ledger rejected request: %s", fail.Message)
		}
		return fmt.Errorf("ledger rejected request with status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return err
		}
	}
	return nil
}

package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
)

// Client is a single-endpoint JSON-RPC transport. It carries no retry state;
// failover and backoff live in the pool that owns a set of these.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *logrus.Logger
}

// ClientConfig holds configuration for the RPC client
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *logrus.Logger
}

// NewClient creates a new RPC transport client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger,
	}
}

// Endpoint returns the endpoint URL this client talks to.
func (c *Client) Endpoint() string {
	return c.baseURL
}

// IsRateLimit reports whether err looks like a rate-limit rejection. Matching
// is by phrase because providers disagree on how they say it.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "rate")
}

// Call makes a single JSON-RPC call, no retries.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, data)
	if err != nil {
		return err
	}

	var envelope rpcEnvelope
	if err := json.Unmarshal(resp, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429)")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// GetAccountInfo fetches raw account data. A missing account is (nil, nil),
// not an error.
func (c *Client) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*AccountInfo, error) {
	params := []interface{}{
		address.String(),
		map[string]interface{}{"encoding": "base64", "commitment": "confirmed"},
	}

	var result accountInfoResult
	if err := c.Call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}
	return result.Value.decode()
}

// GetMultipleAccounts fetches up to 100 accounts in one call. Missing
// accounts come back as nil entries in the same positions.
func (c *Client) GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*AccountInfo, error) {
	keys := make([]string, len(addresses))
	for i, a := range addresses {
		keys[i] = a.String()
	}
	params := []interface{}{
		keys,
		map[string]interface{}{"encoding": "base64", "commitment": "confirmed"},
	}

	var result multipleAccountsResult
	if err := c.Call(ctx, "getMultipleAccounts", params, &result); err != nil {
		return nil, err
	}
	out := make([]*AccountInfo, len(result.Value))
	for i, raw := range result.Value {
		if raw == nil {
			continue
		}
		info, err := raw.decode()
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", keys[i], err)
		}
		out[i] = info
	}
	return out, nil
}

// GetLatestBlockhash returns a recent blockhash for transaction assembly.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	params := []interface{}{map[string]interface{}{"commitment": "confirmed"}}

	var result blockhashResult
	if err := c.Call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return solana.Hash{}, err
	}
	hash, err := solana.HashFromBase58(result.Value.Blockhash)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("invalid blockhash %q: %w", result.Value.Blockhash, err)
	}
	return hash, nil
}

// SimulateTransaction simulates a serialized transaction without signature
// verification, against a replaced recent blockhash.
func (c *Client) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*SimulationResult, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	params := []interface{}{
		base64.StdEncoding.EncodeToString(raw),
		map[string]interface{}{
			"encoding":               "base64",
			"sigVerify":              false,
			"replaceRecentBlockhash": true,
			"commitment":             "confirmed",
		},
	}

	var result simulateResult
	if err := c.Call(ctx, "simulateTransaction", params, &result); err != nil {
		return nil, err
	}

	sim := &SimulationResult{
		Success: result.Value.Err == nil,
		Logs:    result.Value.Logs,
	}
	if result.Value.UnitsConsumed != nil {
		sim.UnitsConsumed = *result.Value.UnitsConsumed
	}
	if result.Value.Err != nil {
		sim.Err = fmt.Sprintf("%v", result.Value.Err)
	}
	return sim, nil
}

// SendTransaction submits a signed transaction and returns its signature.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("serialize transaction: %w", err)
	}
	params := []interface{}{
		base64.StdEncoding.EncodeToString(raw),
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": "confirmed",
		},
	}

	var sigStr string
	if err := c.Call(ctx, "sendTransaction", params, &sigStr); err != nil {
		return solana.Signature{}, err
	}
	sig, err := solana.SignatureFromBase58(sigStr)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid signature %q: %w", sigStr, err)
	}
	return sig, nil
}

// GetSignatureStatuses returns confirmation status for signatures; nil
// entries mean the cluster has not seen the signature.
func (c *Client) GetSignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]*SignatureStatus, error) {
	strs := make([]string, len(sigs))
	for i, s := range sigs {
		strs[i] = s.String()
	}
	params := []interface{}{strs, map[string]interface{}{"searchTransactionHistory": true}}

	var result signatureStatusesResult
	if err := c.Call(ctx, "getSignatureStatuses", params, &result); err != nil {
		return nil, err
	}
	return result.Value, nil
}

// GetTokenAccountBalance returns the raw token amount held by a token account.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	params := []interface{}{account.String(), map[string]interface{}{"commitment": "confirmed"}}

	var result tokenBalanceResult
	if err := c.Call(ctx, "getTokenAccountBalance", params, &result); err != nil {
		return 0, err
	}
	var amount uint64
	if _, err := fmt.Sscan(result.Value.Amount, &amount); err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", result.Value.Amount, err)
	}
	return amount, nil
}

package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// codeUserRejected is the EIP-1193 style code wallets use when the user
// declines a prompt.
const codeUserRejected = 4001

// sompiPerUnit converts whole units to the integer amount wallets expect.
var sompiPerUnit = decimal.New(1, 8)

// RPCError is a JSON-RPC error returned by the wallet bridge.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// RPCProvider reaches a wallet through a local JSON-RPC 2.0 bridge.
type RPCProvider struct {
	url        string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewRPCProvider returns a provider for the bridge at url. An empty url
// yields a provider that always reports ErrProviderUnavailable.
func NewRPCProvider(url string, timeout time.Duration) *RPCProvider {
	if timeout <= 0 {
		// Approval prompts wait on the user.
		timeout = 2 * time.Minute
	}
	return &RPCProvider{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *RPCProvider) GetAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, "getAccounts", []any{}, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, "requestAccounts", []any{}, &accounts); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrUserRejected
	}
	return accounts, nil
}

func (p *RPCProvider) SignMessage(ctx context.Context, message string) (string, error) {
	var sig string
	if err := p.call(ctx, "signMessage", []any{message}, &sig); err != nil {
		return "", err
	}
	return sig, nil
}

func (p *RPCProvider) SendValue(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", fmt.Errorf("amount must be positive, got %s", amount)
	}
	sompi := amount.Mul(sompiPerUnit)
	if !sompi.Equal(sompi.Truncate(0)) {
		return "", fmt.Errorf("amount %s has more than 8 decimal places", amount)
	}

	var txid string
	if err := p.call(ctx, "sendKaspa", []any{to, sompi.IntPart()}, &txid); err != nil {
		return "", err
	}
	logrus.WithFields(logrus.Fields{"to": Short(to), "amount": amount.String(), "txid": txid}).Info("value sent")
	return txid, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (p *RPCProvider) call(ctx context.Context, method string, params, result any) error {
	if p.url == "" {
		return ErrProviderUnavailable
	}

	data, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      p.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encoding %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return fmt.Errorf("%w (%v)", ErrProviderUnavailable, err)
		}
		return fmt.Errorf("calling wallet %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading wallet response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrProviderUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wallet bridge returned %d: %s", resp.StatusCode, string(body))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("decoding wallet response: %w", err)
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == codeUserRejected {
			return ErrUserRejected
		}
		return rpcResp.Error
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

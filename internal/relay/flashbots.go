// Package relay talks to a Flashbots-compatible bundle relay.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
)

const (
	DefaultURL = "https://relay.flashbots.net"

	methodCallBundle = "eth_callBundle"
	methodSendBundle = "eth_sendBundle"

	// submitted bundles stay valid for this long
	bundleTTL = 60 * time.Second
)

var ErrRelay = errors.New("relay error")

// Config for relay client
type Config struct {
	URL     string
	Timeout time.Duration
}

// MessageSigner authenticates relay requests
type MessageSigner interface {
	Address() common.Address
	SignMessage(msg []byte) ([]byte, error)
}

// SendBundleParams are the eth_sendBundle parameters
type SendBundleParams struct {
	Txs               []hexutil.Bytes `json:"txs"`
	BlockNumber       hexutil.Uint64  `json:"blockNumber"`
	MinTimestamp      uint64          `json:"minTimestamp"`
	MaxTimestamp      uint64          `json:"maxTimestamp"`
	RevertingTxHashes []common.Hash   `json:"revertingTxHashes"`
}

// CallBundleParams are the eth_callBundle parameters
type CallBundleParams struct {
	Txs              []hexutil.Bytes `json:"txs"`
	BlockNumber      hexutil.Uint64  `json:"blockNumber"`
	StateBlockNumber hexutil.Uint64  `json:"stateBlockNumber"`
}

// BundleResponse from eth_sendBundle
type BundleResponse struct {
	BundleHash common.Hash `json:"bundleHash"`
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Client is a Flashbots relay client. It is safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
	signer     MessageSigner
	nextID     atomic.Uint64
}

// New creates a new relay client
func New(cfg Config, signer MessageSigner) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		signer:     signer,
	}
}

// SimulateBundle dry-runs txs on top of the state at targetBlock-1. Relay
// side failures come back as a SimFailed outcome; the error is for
// transport problems only.
func (c *Client) SimulateBundle(ctx context.Context, txs []hexutil.Bytes, targetBlock uint64) (SimOutcome, error) {
	params := CallBundleParams{
		Txs:              txs,
		BlockNumber:      hexutil.Uint64(targetBlock),
		StateBlockNumber: hexutil.Uint64(targetBlock - 1),
	}

	resp, err := c.call(ctx, methodCallBundle, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return SimFailed{Message: resp.Error.Message}, nil
	}
	var result SimulationResult
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return SimFailed{Message: "empty simulation result"}, nil
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode simulation: %w", err)
	}
	return classify(&result), nil
}

// SendBundle submits txs for inclusion in targetBlock. It is sent once and
// never retried.
func (c *Client) SendBundle(ctx context.Context, txs []hexutil.Bytes, targetBlock uint64, now time.Time) (*BundleResponse, error) {
	params := SendBundleParams{
		Txs:               txs,
		BlockNumber:       hexutil.Uint64(targetBlock),
		MinTimestamp:      0,
		MaxTimestamp:      uint64(now.Add(bundleTTL).Unix()),
		RevertingTxHashes: []common.Hash{},
	}

	resp, err := c.call(ctx, methodSendBundle, params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s", ErrRelay, resp.Error.Message)
	}
	var result BundleResponse
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode bundle response: %w", err)
	}

	log.Debug().
		Str("bundleHash", result.BundleHash.Hex()).
		Int("txCount", len(txs)).
		Uint64("block", targetBlock).
		Msg("Bundle submitted")

	return &result, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  []interface{}{params},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	signature, err := c.signPayload(body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Flashbots-Signature", signature)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrRelay, method, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", method, err)
	}
	return &out, nil
}

// signPayload returns "address:signature" where the signature is a personal
// sign over the hex keccak of the body
func (c *Client) signPayload(body []byte) (string, error) {
	hashedBody := crypto.Keccak256Hash(body).Hex()
	signature, err := c.signer.SignMessage([]byte(hashedBody))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s", c.signer.Address().Hex(), hexutil.Encode(signature)), nil
}

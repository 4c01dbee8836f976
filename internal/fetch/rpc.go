package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// RPCOptions parameterise the JSON-RPC network-state fetcher.
type RPCOptions struct {
	RPCURL  string
	Timeout time.Duration
}

// RPC samples Ethereum network state directly over JSON-RPC, as an
// alternative to the REST endpoint.
type RPC struct {
	opts      RPCOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewRPC builds an RPC network-state fetcher.
func NewRPC(opts RPCOptions, logger zerolog.Logger) *RPC {
	return &RPC{opts: opts, logger: logger.With().Str("component", "rpc_fetcher").Logger()}
}

type networkState struct {
	Height           uint64 `json:"height"`
	UnconfirmedCount uint   `json:"unconfirmed_count"`
	HighGasPrice     uint64 `json:"high_gas_price"`
	PeerCount        uint64 `json:"peer_count"`
}

// FetchNetworkState returns a blockchain sample payload in the same shape
// the REST source produces.
func (r *RPC) FetchNetworkState(ctx context.Context) (json.RawMessage, error) {
	if r.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	timeout := r.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := r.getClient(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := client.PendingTransactionCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("pending transaction count: %w", err)
	}

	height, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}

	state := networkState{
		Height:           height,
		UnconfirmedCount: pending,
	}

	if gasPrice, gasErr := client.SuggestGasPrice(ctx); gasErr == nil {
		state.HighGasPrice = gasPrice.Uint64()
	}
	if peers, peerErr := client.PeerCount(ctx); peerErr == nil {
		state.PeerCount = peers
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (r *RPC) getClient(ctx context.Context) (*ethclient.Client, error) {
	r.clientMux.Lock()
	defer r.clientMux.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	client, err := ethclient.DialContext(ctx, r.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

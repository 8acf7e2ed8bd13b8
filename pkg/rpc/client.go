package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/validatorlabs/solana-validator-exporter/pkg/slog"
)

type (
	// Client issues JSON-RPC 2.0 calls against a single Solana RPC endpoint.
	// The underlying http.Client is shared across all clients in the process
	// so that one connection pool serves every call.
	Client struct {
		httpClient  *http.Client
		rpcUrl      string
		httpTimeout time.Duration
		logger      *zap.SugaredLogger
	}

	Request struct {
		Jsonrpc string `json:"jsonrpc"`
		Id      int    `json:"id"`
		Method  string `json:"method"`
		Params  []any  `json:"params"`
	}

	Commitment string
)

const (
	// LamportsInSol is the number of lamports in 1 SOL (a billion)
	LamportsInSol = 1_000_000_000

	// CommitmentFinalized is reached when a block has been confirmed by a
	// supermajority of the stake and at least 31 confirmed blocks have been
	// built on top of it.
	CommitmentFinalized Commitment = "finalized"
	// CommitmentConfirmed is reached when a block has been voted on by a
	// supermajority (66%+) of the network's stake.
	CommitmentConfirmed Commitment = "confirmed"
)

func NewClient(httpClient *http.Client, rpcUrl string, httpTimeout time.Duration) *Client {
	return &Client{httpClient: httpClient, rpcUrl: rpcUrl, httpTimeout: httpTimeout, logger: slog.Get()}
}

// Url returns the endpoint this client talks to.
func (c *Client) Url() string {
	return c.rpcUrl
}

// getResponse issues a single JSON-RPC call and decodes the envelope into
// rpcResponse. Transport and decode failures come back as wrapped errors; an
// RPC-level failure comes back as *RPCError so callers can inspect the code.
func getResponse[T any](
	ctx context.Context, client *Client, method string, params []any, rpcResponse *Response[T],
) error {
	request := &Request{Jsonrpc: "2.0", Id: 1, Method: method, Params: params}
	buffer, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}
	client.logger.Debugf("jsonrpc request: %s", string(buffer))

	ctx, cancel := context.WithTimeout(ctx, client.httpTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.rpcUrl, bytes.NewBuffer(buffer))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := client.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s rpc call failed: %w", method, err)
	}
	//goland:noinspection GoUnhandledErrorResult
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error processing %s rpc call: %w", method, err)
	}
	client.logger.Debugf("%s response: %v", method, string(body))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s rpc call returned http status %d: %s", method, resp.StatusCode, string(body))
	}

	if err = json.Unmarshal(body, rpcResponse); err != nil {
		return fmt.Errorf("failed to decode %s response body: %w", method, err)
	}

	// check for an actual rpc error:
	if rpcResponse.Error.Code != 0 {
		rpcResponse.Error.Method = method
		return &rpcResponse.Error
	}
	return nil
}

// GetHealth returns the current health of the node.
// See API docs: https://solana.com/docs/rpc/http/gethealth
func (c *Client) GetHealth(ctx context.Context) (string, error) {
	var resp Response[string]
	if err := getResponse(ctx, c, "getHealth", []any{}, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

// GetVersion returns the current Solana version running on the node.
// See API docs: https://solana.com/docs/rpc/http/getversion
func (c *Client) GetVersion(ctx context.Context) (string, error) {
	var resp Response[struct {
		Version string `json:"solana-core"`
	}]
	if err := getResponse(ctx, c, "getVersion", []any{}, &resp); err != nil {
		return "", err
	}
	return resp.Result.Version, nil
}

// GetEpochInfo returns information about the current epoch.
// See API docs: https://solana.com/docs/rpc/http/getepochinfo
func (c *Client) GetEpochInfo(ctx context.Context, commitment Commitment) (*EpochInfo, error) {
	config := map[string]string{"commitment": string(commitment)}
	var resp Response[EpochInfo]
	if err := getResponse(ctx, c, "getEpochInfo", []any{config}, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// GetSlot returns the slot that has reached the given commitment level.
// See API docs: https://solana.com/docs/rpc/http/getslot
func (c *Client) GetSlot(ctx context.Context, commitment Commitment) (int64, error) {
	config := map[string]string{"commitment": string(commitment)}
	var resp Response[int64]
	if err := getResponse(ctx, c, "getSlot", []any{config}, &resp); err != nil {
		return 0, err
	}
	return resp.Result, nil
}

// GetRecentPerformanceSamples returns a list of recent performance samples,
// in reverse slot order.
// See API docs: https://solana.com/docs/rpc/http/getrecentperformancesamples
func (c *Client) GetRecentPerformanceSamples(ctx context.Context, limit int) ([]PerformanceSample, error) {
	var resp Response[[]PerformanceSample]
	if err := getResponse(ctx, c, "getRecentPerformanceSamples", []any{limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// GetBalance returns the lamport balance of the account of provided pubkey.
// See API docs: https://solana.com/docs/rpc/http/getbalance
func (c *Client) GetBalance(ctx context.Context, commitment Commitment, address string) (int64, error) {
	config := map[string]string{"commitment": string(commitment)}
	var resp Response[contextualResult[int64]]
	if err := getResponse(ctx, c, "getBalance", []any{address, config}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Value, nil
}

// GetLeaderSchedule returns the leader schedule for the current epoch,
// filtered to the given validator identity. The slots are offsets relative
// to the first slot of the epoch.
// See API docs: https://solana.com/docs/rpc/http/getleaderschedule
func (c *Client) GetLeaderSchedule(
	ctx context.Context, commitment Commitment, identity string,
) (map[string][]int64, error) {
	config := map[string]any{"commitment": string(commitment), "identity": identity}
	var resp Response[map[string][]int64]
	if err := getResponse(ctx, c, "getLeaderSchedule", []any{nil, config}, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// GetVoteAccounts returns the account info and associated stake of the
// voting accounts in the current bank, filtered to the given vote pubkey.
// See API docs: https://solana.com/docs/rpc/http/getvoteaccounts
func (c *Client) GetVoteAccounts(
	ctx context.Context, commitment Commitment, votePubkey string,
) (*VoteAccounts, error) {
	config := map[string]string{"commitment": string(commitment), "votePubkey": votePubkey}
	var resp Response[VoteAccounts]
	if err := getResponse(ctx, c, "getVoteAccounts", []any{config}, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// GetBlockProduction returns block production information from the current
// epoch, filtered to the given validator identity.
// See API docs: https://solana.com/docs/rpc/http/getblockproduction
func (c *Client) GetBlockProduction(
	ctx context.Context, commitment Commitment, identity string,
) (*BlockProduction, error) {
	config := map[string]string{"commitment": string(commitment), "identity": identity}
	var resp Response[contextualResult[BlockProduction]]
	if err := getResponse(ctx, c, "getBlockProduction", []any{config}, &resp); err != nil {
		return nil, err
	}
	return &resp.Result.Value, nil
}

// GetInflationReward returns the inflation / staking reward for a list of
// addresses for an epoch. The returned list is parallel to the addresses
// list; an address with no reward for that epoch yields a null entry.
// See API docs: https://solana.com/docs/rpc/http/getinflationreward
func (c *Client) GetInflationReward(
	ctx context.Context, commitment Commitment, addresses []string, epoch int64,
) ([]*InflationReward, error) {
	config := map[string]any{"commitment": string(commitment), "epoch": epoch}
	var resp Response[[]*InflationReward]
	if err := getResponse(ctx, c, "getInflationReward", []any{addresses, config}, &resp); err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// GetBlock returns identity and transaction information about a confirmed
// block in the ledger, with full transaction details and rewards included.
// See API docs: https://solana.com/docs/rpc/http/getblock
func (c *Client) GetBlock(ctx context.Context, commitment Commitment, slot int64) (*Block, error) {
	config := map[string]any{
		"commitment":                     string(commitment),
		"encoding":                       "json",
		"transactionDetails":             "full",
		"rewards":                        true,
		"maxSupportedTransactionVersion": 0,
	}
	var resp Response[Block]
	if err := getResponse(ctx, c, "getBlock", []any{slot, config}, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

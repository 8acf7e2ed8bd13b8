package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/validatorlabs/solana-validator-exporter/pkg/price"
	"github.com/validatorlabs/solana-validator-exporter/pkg/rpc"
)

func testScrapeResponses() map[string]any {
	return map[string]any{
		"getHealth":  "ok",
		"getVersion": map[string]string{"solana-core": "1.18.22"},
		"getEpochInfo": map[string]int{
			"absoluteSlot":     166_598,
			"blockHeight":      166_500,
			"epoch":            27,
			"slotIndex":        2_048,
			"slotsInEpoch":     8_192,
			"transactionCount": 22_661_093,
		},
		"getSlot": 166_598,
		"getRecentPerformanceSamples": []map[string]int{
			{"slot": 166_598, "numTransactions": 6_000, "numSlots": 120, "samplePeriodSecs": 60},
		},
		"getBalance": map[string]any{
			"context": map[string]int{"slot": 1},
			"value":   5 * rpc.LamportsInSol,
		},
		"getLeaderSchedule": map[string][]int64{"aaa": {0, 4, 8}},
		"getVoteAccounts": map[string]any{
			"current": []map[string]any{
				{
					"activatedStake": 7 * rpc.LamportsInSol,
					"commission":     5,
					"lastVote":       166_590,
					"rootSlot":       166_550,
					"nodePubkey":     "aaa",
					"votePubkey":     "AAA",
				},
			},
			"delinquent": []map[string]any{},
		},
		"getBlockProduction": map[string]any{
			"context": map[string]int{"slot": 166_598},
			"value": map[string]any{
				"byIdentity": map[string][]int{"aaa": {8, 6}},
				"range":      map[string]int{"firstSlot": 164_550, "lastSlot": 166_598},
			},
		},
		"getInflationReward": []map[string]any{
			{
				"amount":        2_500_000_000,
				"effectiveSlot": 166_000,
				"epoch":         26,
				"postBalance":   499_999_442_500,
				"commission":    5,
			},
		},
		"getBlock": testBlockResult([]map[string]any{
			testTransaction(1_000_000, 2_100, "xxx", VoteProgram),
		}),
	}
}

func newPriceTestClient(t *testing.T, body string) *price.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return price.NewClient(&http.Client{}, server.URL, time.Second)
}

func newTestCollector(t *testing.T, responses map[string]any, priceClient *price.Client) (*rpc.MockServer, *SolanaCollector) {
	server, client := rpc.NewTestClient(t, responses)
	config := &ExporterConfig{
		RpcUrl:         server.URL(),
		LocalRpcUrl:    server.URL(),
		IdentityKey:    "aaa",
		VoteKey:        "AAA",
		HttpTimeout:    time.Second,
		MaxConnections: 20,
	}
	if priceClient == nil {
		// unreachable quote source; the price stays absent
		priceClient = price.NewClient(&http.Client{}, "http://127.0.0.1:1", time.Second)
	}
	return server, NewSolanaCollector(config, client, client, priceClient)
}

func TestSolanaCollector_Collect(t *testing.T) {
	priceClient := newPriceTestClient(t, `{"solana":{"usd":100}}`)
	_, collector := newTestCollector(t, testScrapeResponses(), priceClient)

	expected := `
# HELP solana_node_health Node health status (1=healthy, 0=down)
# TYPE solana_node_health gauge
solana_node_health 1
# HELP solana_node_version_info Solana version info
# TYPE solana_node_version_info gauge
solana_node_version_info{version="1.18.22"} 1
# HELP solana_epoch_number Current epoch number
# TYPE solana_epoch_number gauge
solana_epoch_number 27
# HELP solana_epoch_progress_percent Epoch completion percentage
# TYPE solana_epoch_progress_percent gauge
solana_epoch_progress_percent 25
# HELP solana_network_tps Network transactions per second
# TYPE solana_network_tps gauge
solana_network_tps 100
# HELP solana_network_slot_time_ms Average time per slot in milliseconds
# TYPE solana_network_slot_time_ms gauge
solana_network_slot_time_ms 500
# HELP solana_validator_identity_balance_sol Validator identity account balance (SOL)
# TYPE solana_validator_identity_balance_sol gauge
solana_validator_identity_balance_sol 5
# HELP solana_validator_identity_balance_usd Validator identity account balance (USD)
# TYPE solana_validator_identity_balance_usd gauge
solana_validator_identity_balance_usd 500
# HELP solana_validator_activated_stake_sol Active stake delegated to validator (SOL)
# TYPE solana_validator_activated_stake_sol gauge
solana_validator_activated_stake_sol 7
# HELP solana_validator_delinquent Validator delinquency status (0=active, 1=delinquent)
# TYPE solana_validator_delinquent gauge
solana_validator_delinquent 0
# HELP solana_validator_leader_slots_assigned Number of leader slots assigned this epoch
# TYPE solana_validator_leader_slots_assigned gauge
solana_validator_leader_slots_assigned 3
# HELP solana_validator_leader_slots_total Total leader slots
# TYPE solana_validator_leader_slots_total gauge
solana_validator_leader_slots_total 8
# HELP solana_validator_blocks_produced Blocks successfully produced
# TYPE solana_validator_blocks_produced gauge
solana_validator_blocks_produced 6
# HELP solana_validator_blocks_skipped Blocks skipped (missed)
# TYPE solana_validator_blocks_skipped gauge
solana_validator_blocks_skipped 2
# HELP solana_validator_skip_rate_percent Skip rate percentage
# TYPE solana_validator_skip_rate_percent gauge
solana_validator_skip_rate_percent 25
# HELP solana_price_usd Current SOL price in USD
# TYPE solana_price_usd gauge
solana_price_usd 100
# HELP solana_validator_inflation_reward_sol Inflation reward earned (SOL), grouped by epoch
# TYPE solana_validator_inflation_reward_sol gauge
solana_validator_inflation_reward_sol{epoch="25"} 2.5
solana_validator_inflation_reward_sol{epoch="26"} 2.5
# HELP solana_validator_epoch_fees_blocks_sampled Number of blocks sampled for the fee estimate
# TYPE solana_validator_epoch_fees_blocks_sampled gauge
solana_validator_epoch_fees_blocks_sampled 3
# HELP solana_validator_epoch_fees_sol Estimated total fees collected by the validator's blocks this epoch (SOL), extrapolated from a bounded sample of recent blocks
# TYPE solana_validator_epoch_fees_sol gauge
solana_validator_epoch_fees_sol 0.003
# HELP solana_exporter_build_info Exporter version info
# TYPE solana_exporter_build_info gauge
solana_exporter_build_info{version="1.0.0"} 1
`
	names := []string{
		"solana_node_health",
		"solana_node_version_info",
		"solana_epoch_number",
		"solana_epoch_progress_percent",
		"solana_network_tps",
		"solana_network_slot_time_ms",
		"solana_validator_identity_balance_sol",
		"solana_validator_identity_balance_usd",
		"solana_validator_activated_stake_sol",
		"solana_validator_delinquent",
		"solana_validator_leader_slots_assigned",
		"solana_validator_leader_slots_total",
		"solana_validator_blocks_produced",
		"solana_validator_blocks_skipped",
		"solana_validator_skip_rate_percent",
		"solana_price_usd",
		"solana_validator_inflation_reward_sol",
		"solana_validator_epoch_fees_blocks_sampled",
		"solana_validator_epoch_fees_sol",
		"solana_exporter_build_info",
	}
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected), names...))

	// rendering the same inputs again is deterministic:
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected), names...))

	// the self-reporting metrics are always present:
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "solana_exporter_scrape_duration_seconds"))
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "solana_exporter_scrape_timestamp_seconds"))
}

func TestSolanaCollector_FaultIsolation(t *testing.T) {
	server, collector := newTestCollector(t, testScrapeResponses(), nil)
	server.SetError("getVoteAccounts", &rpc.RPCError{Code: rpc.NodeUnhealthyCode, Message: "Node is behind"})

	// the vote-account metrics disappear:
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "solana_validator_activated_stake_sol"))
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "solana_validator_delinquent"))

	// everything fetched by other calls is unaffected:
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "solana_epoch_number"))
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "solana_validator_identity_balance_sol"))
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "solana_node_version_info"))
}

func TestSolanaCollector_PriceUnavailable(t *testing.T) {
	_, collector := newTestCollector(t, testScrapeResponses(), nil)

	// without a quote, the USD siblings are omitted entirely, not zeroed:
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "solana_price_usd"))
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "solana_validator_identity_balance_usd"))
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "solana_validator_epoch_fees_usd"))

	// the SOL-denominated metrics stay:
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "solana_validator_identity_balance_sol"))
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "solana_validator_epoch_fees_sol"))
}

func TestSolanaCollector_KeysNotConfigured(t *testing.T) {
	server, client := rpc.NewTestClient(t, testScrapeResponses())
	config := &ExporterConfig{
		RpcUrl:         server.URL(),
		HttpTimeout:    time.Second,
		MaxConnections: 20,
	}
	priceClient := price.NewClient(&http.Client{}, "http://127.0.0.1:1", time.Second)
	collector := NewSolanaCollector(config, client, nil, priceClient)

	// no local RPC, no identity, no vote key: only cluster-wide metrics
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "solana_node_health"))
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "solana_validator_identity_balance_sol"))
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "solana_validator_vote_balance_sol"))
	assert.Equal(t, 0, testutil.CollectAndCount(collector, "solana_validator_leader_slots_assigned"))
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "solana_epoch_number"))
	assert.Equal(t, 1, testutil.CollectAndCount(collector, "solana_node_version_info"))
}

func TestSolanaCollector_DelinquentValidator(t *testing.T) {
	responses := testScrapeResponses()
	responses["getVoteAccounts"] = map[string]any{
		"current": []map[string]any{},
		"delinquent": []map[string]any{
			{
				"activatedStake": 7 * rpc.LamportsInSol,
				"commission":     5,
				"lastVote":       166_000,
				"rootSlot":       165_900,
				"nodePubkey":     "aaa",
				"votePubkey":     "AAA",
			},
		},
	}
	_, collector := newTestCollector(t, responses, nil)

	expected := `
# HELP solana_validator_delinquent Validator delinquency status (0=active, 1=delinquent)
# TYPE solana_validator_delinquent gauge
solana_validator_delinquent 1
`
	require.NoError(t, testutil.CollectAndCompare(
		collector, strings.NewReader(expected), "solana_validator_delinquent",
	))
}

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/validatorlabs/solana-validator-exporter/pkg/rpc"
)

func feeScheduleOffsets(n int64) []int64 {
	offsets := make([]int64, n)
	for i := range offsets {
		offsets[i] = int64(i)
	}
	return offsets
}

func TestEstimateEpochFees_Extrapolated(t *testing.T) {
	// 50 completed leader slots, 20 sampled at 0.1 SOL each:
	// (2 SOL / 20) * 50 = 5 SOL estimated.
	_, client := rpc.NewTestClient(t, map[string]any{
		"getEpochInfo": map[string]int{
			"absoluteSlot": 1000,
			"epoch":        1,
			"slotIndex":    1000,
			"slotsInEpoch": 2000,
		},
		"getBlockProduction": map[string]any{
			"context": map[string]int{"slot": 1000},
			"value": map[string]any{
				"byIdentity": map[string][]int{"aaa": {50, 50}},
				"range":      map[string]int{"firstSlot": 0, "lastSlot": 1000},
			},
		},
		"getLeaderSchedule": map[string][]int64{"aaa": feeScheduleOffsets(50)},
		"getBlock": testBlockResult([]map[string]any{
			testTransaction(100_000_000, 2_100, "xxx"),
		}),
	})

	estimate, err := estimateEpochFees(context.Background(), client, "aaa")
	require.NoError(t, err)

	assert.Equal(t, int64(50), estimate.BlocksCompleted)
	assert.Equal(t, int64(20), estimate.BlocksSampled)
	assert.Equal(t, 2.0, estimate.SampledFeesSol)
	assert.Equal(t, 0.1, estimate.AvgFeePerBlock)
	assert.Equal(t, 5.0, estimate.TotalFeesSol)
}

func TestEstimateEpochFees_ExactWhenFullySampled(t *testing.T) {
	// 10 completed slots fit inside the sample, so no extrapolation happens.
	_, client := rpc.NewTestClient(t, map[string]any{
		"getEpochInfo": map[string]int{
			"absoluteSlot": 1000,
			"epoch":        1,
			"slotIndex":    1000,
			"slotsInEpoch": 2000,
		},
		"getBlockProduction": map[string]any{
			"context": map[string]int{"slot": 1000},
			"value": map[string]any{
				"byIdentity": map[string][]int{"aaa": {10, 10}},
				"range":      map[string]int{"firstSlot": 0, "lastSlot": 1000},
			},
		},
		"getLeaderSchedule": map[string][]int64{"aaa": feeScheduleOffsets(10)},
		"getBlock": testBlockResult([]map[string]any{
			testTransaction(100_000_000, 2_100, "xxx"),
		}),
	})

	estimate, err := estimateEpochFees(context.Background(), client, "aaa")
	require.NoError(t, err)

	assert.Equal(t, int64(10), estimate.BlocksCompleted)
	assert.Equal(t, int64(10), estimate.BlocksSampled)
	assert.Equal(t, 1.0, estimate.SampledFeesSol)
	assert.Equal(t, 1.0, estimate.TotalFeesSol)
}

func TestEstimateEpochFees_NoBlocksProduced(t *testing.T) {
	_, client := rpc.NewTestClient(t, map[string]any{
		"getEpochInfo": map[string]int{
			"absoluteSlot": 1000,
			"epoch":        1,
			"slotIndex":    1000,
			"slotsInEpoch": 2000,
		},
		"getBlockProduction": map[string]any{
			"context": map[string]int{"slot": 1000},
			"value": map[string]any{
				"byIdentity": map[string][]int{},
				"range":      map[string]int{"firstSlot": 0, "lastSlot": 1000},
			},
		},
	})

	estimate, err := estimateEpochFees(context.Background(), client, "aaa")
	require.NoError(t, err)
	assert.Equal(t, &EpochFeeEstimate{}, estimate)
}

func TestEstimateEpochFees_NotConfigured(t *testing.T) {
	estimate, err := estimateEpochFees(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Equal(t, &EpochFeeEstimate{}, estimate)
}

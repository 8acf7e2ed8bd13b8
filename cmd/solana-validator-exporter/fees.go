package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/validatorlabs/solana-validator-exporter/pkg/rpc"
	"github.com/validatorlabs/solana-validator-exporter/pkg/slog"
)

const (
	// feeSampleWorkingSetSize caps how many of the validator's completed
	// leader slots the estimator considers at all.
	feeSampleWorkingSetSize = 100
	// feeSampleSize is how many of those slots actually get a per-block fee
	// lookup; fees beyond the sample are extrapolated from the average.
	feeSampleSize = 20
)

// EpochFeeEstimate is a statistical estimate of the fees collected by the
// validator's blocks this epoch, extrapolated from a bounded sample of
// recently produced blocks. TotalFeesSol is not an exact ledger value.
type EpochFeeEstimate struct {
	TotalFeesSol    float64 `json:"total_fees_sol_estimated"`
	SampledFeesSol  float64 `json:"sampled_fees_sol"`
	BlocksSampled   int64   `json:"blocks_sampled"`
	BlocksCompleted int64   `json:"blocks_completed"`
	AvgFeePerBlock  float64 `json:"avg_fee_per_block_sol"`
}

// estimateEpochFees samples the fees of the validator's most recent leader
// blocks and extrapolates a total for the epoch so far.
func estimateEpochFees(ctx context.Context, client *rpc.Client, identity string) (*EpochFeeEstimate, error) {
	logger := slog.Get()
	if identity == "" {
		return &EpochFeeEstimate{}, nil
	}

	epochInfo, err := client.GetEpochInfo(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get epoch info for fee estimate: %w", err)
	}

	production, err := client.GetBlockProduction(ctx, rpc.CommitmentFinalized, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to get block production for fee estimate: %w", err)
	}
	if production.ByIdentity[identity].BlocksProduced == 0 {
		logger.Debugf("%s has produced no blocks this epoch, skipping fee sampling", identity)
		return &EpochFeeEstimate{}, nil
	}

	schedule, err := client.GetLeaderSchedule(ctx, rpc.CommitmentFinalized, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to get leader schedule for fee estimate: %w", err)
	}

	absolute := absoluteLeaderSlots(schedule[identity], epochInfo)
	var completed []int64
	for _, slot := range absolute {
		if slot <= epochInfo.AbsoluteSlot {
			completed = append(completed, slot)
		}
	}
	completedCount := int64(len(completed))
	if completedCount == 0 {
		return &EpochFeeEstimate{}, nil
	}
	// bound the RPC call volume: consider only the most recent slots, and
	// fetch per-block fees for an even smaller sample of those.
	if len(completed) > feeSampleWorkingSetSize {
		completed = completed[len(completed)-feeSampleWorkingSetSize:]
		completedCount = feeSampleWorkingSetSize
	}
	sampled := completed
	if len(sampled) > feeSampleSize {
		sampled = sampled[len(sampled)-feeSampleSize:]
	}

	fees := make([]int64, len(sampled))
	var wg sync.WaitGroup
	for i, slot := range sampled {
		wg.Add(1)
		go func(i int, slot int64) {
			defer wg.Done()
			detail, err := inspectBlock(ctx, client, slot)
			if err != nil {
				// failed lookups stay in the sample with a zero fee
				logger.Warnf("failed to fetch fees for slot %d: %v", slot, err)
				return
			}
			if detail.Status == StatusProduced {
				fees[i] = detail.feeLamports
			}
		}(i, slot)
	}
	wg.Wait()

	var sampledFeeLamports int64
	for _, fee := range fees {
		sampledFeeLamports += fee
	}
	sampledCount := int64(len(sampled))

	sampledSum := decimal.NewFromInt(sampledFeeLamports)
	avgPerBlock := sampledSum.Div(decimal.NewFromInt(sampledCount))
	estimatedTotal := sampledSum
	if completedCount > sampledCount {
		estimatedTotal = avgPerBlock.Mul(decimal.NewFromInt(completedCount))
	}

	lamports := decimal.NewFromInt(rpc.LamportsInSol)
	totalSol, _ := estimatedTotal.Div(lamports).Round(6).Float64()
	sampledSol, _ := sampledSum.Div(lamports).Round(6).Float64()
	avgSol, _ := avgPerBlock.Div(lamports).Round(9).Float64()

	return &EpochFeeEstimate{
		TotalFeesSol:    totalSol,
		SampledFeesSol:  sampledSol,
		BlocksSampled:   sampledCount,
		BlocksCompleted: completedCount,
		AvgFeePerBlock:  avgSol,
	}, nil
}

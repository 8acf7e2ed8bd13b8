package main

import (
	"context"
	"fmt"

	"github.com/validatorlabs/solana-validator-exporter/pkg/rpc"
	"github.com/validatorlabs/solana-validator-exporter/pkg/slog"
)

// InflationRewardRecord is the staking reward credited to the vote account
// for one finalized epoch.
type InflationRewardRecord struct {
	Epoch               int64   `json:"epoch"`
	AmountSol           float64 `json:"amount_sol"`
	PostBalanceLamports int64   `json:"post_balance_lamports"`
	Commission          int64   `json:"commission"`
	EffectiveSlot       int64   `json:"effective_slot"`
}

// fetchInflationRewards returns the rewards of the last finalized epoch and
// the one before it, most recent first. An epoch with no reward (not yet
// finalized, or no vote credits earned) simply yields no record.
func fetchInflationRewards(ctx context.Context, client *rpc.Client, voteKey string) ([]InflationRewardRecord, error) {
	logger := slog.Get()
	if voteKey == "" {
		return nil, nil
	}

	epochInfo, err := client.GetEpochInfo(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get epoch info for inflation rewards: %w", err)
	}

	var records []InflationRewardRecord
	for _, epoch := range []int64{epochInfo.Epoch - 1, epochInfo.Epoch - 2} {
		if epoch < 0 {
			continue
		}
		rewards, err := client.GetInflationReward(ctx, rpc.CommitmentFinalized, []string{voteKey}, epoch)
		if err != nil {
			logger.Warnf("failed to get inflation reward for epoch %d: %v", epoch, err)
			continue
		}
		if len(rewards) == 0 || rewards[0] == nil {
			logger.Debugf("no inflation reward for %s in epoch %d", voteKey, epoch)
			continue
		}
		reward := rewards[0]
		records = append(records, InflationRewardRecord{
			Epoch:               epoch,
			AmountSol:           lamportsToSol(reward.Amount),
			PostBalanceLamports: reward.PostBalance,
			Commission:          reward.Commission,
			EffectiveSlot:       reward.EffectiveSlot,
		})
	}
	return records, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/validatorlabs/solana-validator-exporter/pkg/rpc"
	"github.com/validatorlabs/solana-validator-exporter/pkg/slog"
)

const (
	// VoteProgram is the well-known address of the vote program; a
	// transaction referencing it in its account keys is a vote transaction.
	VoteProgram = "Vote111111111111111111111111111111111111111"
	// BlockComputeUnitLimit is the per-block compute budget.
	BlockComputeUnitLimit = 48_000_000

	explorerUrlTemplate = "https://explorer.solana.com/block/%d"

	// window sizes of the /blocks leader-slot table:
	completedWindowSize = 4
	upcomingWindowSize  = 4
)

type BlockStatus string

const (
	StatusProduced BlockStatus = "produced"
	StatusSkipped  BlockStatus = "skipped"
	StatusNoData   BlockStatus = "no-data"
	StatusError    BlockStatus = "error"
	StatusUpcoming BlockStatus = "upcoming"
)

type (
	// BlockDetail holds the per-slot statistics shown in the /blocks table.
	// Nil numeric fields marshal as JSON null: a known-absent value, which
	// consumers must not confuse with zero.
	BlockDetail struct {
		Slot               int64       `json:"slot"`
		Status             BlockStatus `json:"status"`
		VoteCount          *int64      `json:"vote_count"`
		NonVoteCount       *int64      `json:"non_vote_count"`
		FeeTotalSol        *float64    `json:"fee_total_sol"`
		ComputeUnits       *int64      `json:"compute_units"`
		ComputeUnitPercent *float64    `json:"compute_unit_percent"`
		ExplorerLink       string      `json:"explorer_link"`

		// feeLamports is the unrounded fee total, kept for the fee
		// estimator's arithmetic.
		feeLamports int64
	}

	// LeaderSlotWindow is the /blocks response: the validator's most recent
	// completed leader slots and its next upcoming ones.
	LeaderSlotWindow struct {
		CurrentSlot          int64         `json:"current_slot"`
		NextLeaderSlot       *int64        `json:"next_leader_slot"`
		SlotsUntilNextLeader *int64        `json:"slots_until_next_leader"`
		Slots                []BlockDetail `json:"slots"`
		Message              string        `json:"message,omitempty"`
	}
)

func explorerLink(slot int64) string {
	return fmt.Sprintf(explorerUrlTemplate, slot)
}

func placeholderDetail(slot int64, status BlockStatus) BlockDetail {
	return BlockDetail{Slot: slot, Status: status, ExplorerLink: explorerLink(slot)}
}

// inspectBlock fetches the block at the given slot and computes its
// statistics. Skipped and pruned slots are classified from the node's error
// codes and come back as regular details; any other failure is returned to
// the caller, which must treat the slot as unknown.
func inspectBlock(ctx context.Context, client *rpc.Client, slot int64) (*BlockDetail, error) {
	block, err := client.GetBlock(ctx, rpc.CommitmentFinalized, slot)
	if err != nil {
		var rpcErr *rpc.RPCError
		if errors.As(err, &rpcErr) {
			message := strings.ToLower(rpcErr.Message)
			switch {
			case rpcErr.Code == rpc.LongTermStorageSlotSkippedCode ||
				rpcErr.Code == rpc.SlotSkippedCode ||
				strings.Contains(message, "skipped"):
				detail := placeholderDetail(slot, StatusSkipped)
				return &detail, nil
			case rpcErr.Code == rpc.BlockNotAvailableCode || strings.Contains(message, "not available"):
				detail := placeholderDetail(slot, StatusNoData)
				return &detail, nil
			}
		}
		return nil, err
	}

	var (
		voteCount    int64
		nonVoteCount int64
		feeLamports  int64
		computeUnits int64
	)
	for _, tx := range block.Transactions {
		if slices.Contains(tx.Transaction.Message.AccountKeys, VoteProgram) {
			voteCount++
		} else {
			nonVoteCount++
		}
		if tx.Meta != nil {
			feeLamports += tx.Meta.Fee
			computeUnits += tx.Meta.ComputeUnitsConsumed
		}
	}

	feeTotalSol := lamportsToSol(feeLamports)
	computeUnitPercent, _ := decimal.NewFromInt(computeUnits).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(BlockComputeUnitLimit)).
		Round(1).
		Float64()

	return &BlockDetail{
		Slot:               slot,
		Status:             StatusProduced,
		VoteCount:          &voteCount,
		NonVoteCount:       &nonVoteCount,
		FeeTotalSol:        &feeTotalSol,
		ComputeUnits:       &computeUnits,
		ComputeUnitPercent: &computeUnitPercent,
		ExplorerLink:       explorerLink(slot),
		feeLamports:        feeLamports,
	}, nil
}

// lamportsToSol converts a lamport amount to SOL, rounded to 6 decimal places.
func lamportsToSol(lamports int64) float64 {
	sol, _ := decimal.NewFromInt(lamports).
		Div(decimal.NewFromInt(rpc.LamportsInSol)).
		Round(6).
		Float64()
	return sol
}

// absoluteLeaderSlots converts the epoch-relative slot offsets of a leader
// schedule into absolute slots, sorted ascending.
func absoluteLeaderSlots(offsets []int64, epochInfo *rpc.EpochInfo) []int64 {
	epochFirstSlot := epochInfo.AbsoluteSlot - epochInfo.SlotIndex
	absolute := make([]int64, len(offsets))
	for i, offset := range offsets {
		absolute[i] = epochFirstSlot + offset
	}
	slices.Sort(absolute)
	return absolute
}

// partitionLeaderSlots splits absolute leader slots around the current slot,
// keeping at most completedWindowSize most-recently completed slots and at
// most upcomingWindowSize nearest upcoming ones, both sorted ascending.
func partitionLeaderSlots(absolute []int64, currentSlot int64) (completed, upcoming []int64) {
	for _, slot := range absolute {
		if slot <= currentSlot {
			completed = append(completed, slot)
		} else {
			upcoming = append(upcoming, slot)
		}
	}
	if len(completed) > completedWindowSize {
		completed = completed[len(completed)-completedWindowSize:]
	}
	if len(upcoming) > upcomingWindowSize {
		upcoming = upcoming[:upcomingWindowSize]
	}
	return completed, upcoming
}

// buildLeaderSlotWindow assembles the /blocks response for the configured
// validator identity.
func buildLeaderSlotWindow(ctx context.Context, client *rpc.Client, identity string) (*LeaderSlotWindow, error) {
	logger := slog.Get()
	if identity == "" {
		return &LeaderSlotWindow{Slots: []BlockDetail{}, Message: "identity key not configured"}, nil
	}

	var (
		currentSlot int64
		epochInfo   *rpc.EpochInfo
		schedule    map[string][]int64
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		currentSlot, err = client.GetSlot(gCtx, rpc.CommitmentFinalized)
		return err
	})
	g.Go(func() error {
		var err error
		epochInfo, err = client.GetEpochInfo(gCtx, rpc.CommitmentFinalized)
		return err
	})
	g.Go(func() error {
		var err error
		schedule, err = client.GetLeaderSchedule(gCtx, rpc.CommitmentFinalized, identity)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch leader slot window inputs: %w", err)
	}

	absolute := absoluteLeaderSlots(schedule[identity], epochInfo)
	completed, upcoming := partitionLeaderSlots(absolute, currentSlot)

	window := LeaderSlotWindow{CurrentSlot: currentSlot, Slots: []BlockDetail{}}
	if len(upcoming) > 0 {
		next := upcoming[0]
		until := next - currentSlot
		window.NextLeaderSlot = &next
		window.SlotsUntilNextLeader = &until
	}

	// inspect the completed slots concurrently; a failed inspection renders
	// as an error entry rather than being dropped.
	completedDetails := make([]BlockDetail, len(completed))
	var wg sync.WaitGroup
	for i, slot := range completed {
		wg.Add(1)
		go func(i int, slot int64) {
			defer wg.Done()
			detail, err := inspectBlock(ctx, client, slot)
			if err != nil {
				logger.Warnf("failed to inspect block at slot %d: %v", slot, err)
				completedDetails[i] = placeholderDetail(slot, StatusError)
				return
			}
			completedDetails[i] = *detail
		}(i, slot)
	}
	wg.Wait()

	// upcoming first, furthest-future leading, then completed, most recent
	// first.
	for i := len(upcoming) - 1; i >= 0; i-- {
		window.Slots = append(window.Slots, placeholderDetail(upcoming[i], StatusUpcoming))
	}
	for i := len(completedDetails) - 1; i >= 0; i-- {
		window.Slots = append(window.Slots, completedDetails[i])
	}
	return &window, nil
}

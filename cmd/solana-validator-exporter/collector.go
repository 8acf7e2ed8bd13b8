package main

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/validatorlabs/solana-validator-exporter/pkg/price"
	"github.com/validatorlabs/solana-validator-exporter/pkg/rpc"
	"github.com/validatorlabs/solana-validator-exporter/pkg/slog"
)

const (
	VersionLabel = "version"
	EpochLabel   = "epoch"

	// performanceSampleLimit is how many recent performance samples to
	// request; only the most recent one feeds the TPS gauges.
	performanceSampleLimit = 5
)

// ScrapeResult is the bag of everything one scrape cycle fetched. Every
// field is rebuilt from scratch each scrape; nil means the call failed or
// was not configured, and the metrics depending on it are omitted.
type ScrapeResult struct {
	Health           *string
	Version          *string
	EpochInfo        *rpc.EpochInfo
	Slot             *int64
	Performance      []rpc.PerformanceSample
	IdentityBalance  *int64
	LeaderSchedule   map[string][]int64
	VoteBalance      *int64
	VoteAccounts     *rpc.VoteAccounts
	BlockProduction  *rpc.BlockProduction
	SolPrice         *float64
	InflationRewards []InflationRewardRecord
	EpochFees        *EpochFeeEstimate
}

// SolanaCollector fetches all configured RPC and price data concurrently on
// every Prometheus scrape and converts the results into gauges. One call's
// failure never blocks or discards another's result.
type SolanaCollector struct {
	config      *ExporterConfig
	rpcClient   *rpc.Client
	localClient *rpc.Client
	priceClient *price.Client
	logger      *zap.SugaredLogger

	nodeHealth       *prometheus.Desc
	nodeVersion      *prometheus.Desc
	epochNumber      *prometheus.Desc
	epochSlotIndex   *prometheus.Desc
	epochSlotsTotal  *prometheus.Desc
	slotHeight       *prometheus.Desc
	blockHeight      *prometheus.Desc
	transactionCount *prometheus.Desc
	epochProgress    *prometheus.Desc
	clusterSlot      *prometheus.Desc
	networkTps       *prometheus.Desc
	networkSlotTime  *prometheus.Desc

	identityBalanceSol *prometheus.Desc
	identityBalanceUsd *prometheus.Desc
	voteBalanceSol     *prometheus.Desc
	voteBalanceUsd     *prometheus.Desc
	activatedStakeSol  *prometheus.Desc
	activatedStakeUsd  *prometheus.Desc
	lastVoteSlot       *prometheus.Desc
	rootSlot           *prometheus.Desc
	commissionPercent  *prometheus.Desc
	delinquent         *prometheus.Desc

	leaderSlotsAssigned *prometheus.Desc
	leaderSlotsTotal    *prometheus.Desc
	blocksProduced      *prometheus.Desc
	blocksSkipped       *prometheus.Desc
	skipRatePercent     *prometheus.Desc

	solPriceUsd *prometheus.Desc

	inflationRewardSol *prometheus.Desc
	inflationRewardUsd *prometheus.Desc

	epochFeesSol             *prometheus.Desc
	epochFeesUsd             *prometheus.Desc
	epochFeesSampledSol      *prometheus.Desc
	epochFeesAvgPerBlockSol  *prometheus.Desc
	epochFeesBlocksSampled   *prometheus.Desc
	epochFeesBlocksCompleted *prometheus.Desc

	buildInfo       *prometheus.Desc
	scrapeDuration  *prometheus.Desc
	scrapeTimestamp *prometheus.Desc
}

func NewSolanaCollector(
	config *ExporterConfig, rpcClient, localClient *rpc.Client, priceClient *price.Client,
) *SolanaCollector {
	return &SolanaCollector{
		config:      config,
		rpcClient:   rpcClient,
		localClient: localClient,
		priceClient: priceClient,
		logger:      slog.Get(),

		nodeHealth: prometheus.NewDesc(
			"solana_node_health", "Node health status (1=healthy, 0=down)", nil, nil,
		),
		nodeVersion: prometheus.NewDesc(
			"solana_node_version_info", "Solana version info", []string{VersionLabel}, nil,
		),
		epochNumber: prometheus.NewDesc(
			"solana_epoch_number", "Current epoch number", nil, nil,
		),
		epochSlotIndex: prometheus.NewDesc(
			"solana_epoch_slot_index", "Current slot within epoch", nil, nil,
		),
		epochSlotsTotal: prometheus.NewDesc(
			"solana_epoch_slots_total", "Total slots in current epoch", nil, nil,
		),
		slotHeight: prometheus.NewDesc(
			"solana_slot_height", "Current absolute slot", nil, nil,
		),
		blockHeight: prometheus.NewDesc(
			"solana_block_height", "Current block height", nil, nil,
		),
		transactionCount: prometheus.NewDesc(
			"solana_transactions_total", "Total transactions since genesis", nil, nil,
		),
		epochProgress: prometheus.NewDesc(
			"solana_epoch_progress_percent", "Epoch completion percentage", nil, nil,
		),
		clusterSlot: prometheus.NewDesc(
			"solana_cluster_slot", "Latest cluster slot", nil, nil,
		),
		networkTps: prometheus.NewDesc(
			"solana_network_tps", "Network transactions per second", nil, nil,
		),
		networkSlotTime: prometheus.NewDesc(
			"solana_network_slot_time_ms", "Average time per slot in milliseconds", nil, nil,
		),
		identityBalanceSol: prometheus.NewDesc(
			"solana_validator_identity_balance_sol", "Validator identity account balance (SOL)", nil, nil,
		),
		identityBalanceUsd: prometheus.NewDesc(
			"solana_validator_identity_balance_usd", "Validator identity account balance (USD)", nil, nil,
		),
		voteBalanceSol: prometheus.NewDesc(
			"solana_validator_vote_balance_sol", "Validator vote account balance (SOL)", nil, nil,
		),
		voteBalanceUsd: prometheus.NewDesc(
			"solana_validator_vote_balance_usd", "Validator vote account balance (USD)", nil, nil,
		),
		activatedStakeSol: prometheus.NewDesc(
			"solana_validator_activated_stake_sol", "Active stake delegated to validator (SOL)", nil, nil,
		),
		activatedStakeUsd: prometheus.NewDesc(
			"solana_validator_activated_stake_usd", "Active stake delegated to validator (USD)", nil, nil,
		),
		lastVoteSlot: prometheus.NewDesc(
			"solana_validator_last_vote_slot", "Last voted slot", nil, nil,
		),
		rootSlot: prometheus.NewDesc(
			"solana_validator_root_slot", "Root slot", nil, nil,
		),
		commissionPercent: prometheus.NewDesc(
			"solana_validator_commission_percent", "Validator commission percentage", nil, nil,
		),
		delinquent: prometheus.NewDesc(
			"solana_validator_delinquent", "Validator delinquency status (0=active, 1=delinquent)", nil, nil,
		),
		leaderSlotsAssigned: prometheus.NewDesc(
			"solana_validator_leader_slots_assigned", "Number of leader slots assigned this epoch", nil, nil,
		),
		leaderSlotsTotal: prometheus.NewDesc(
			"solana_validator_leader_slots_total", "Total leader slots", nil, nil,
		),
		blocksProduced: prometheus.NewDesc(
			"solana_validator_blocks_produced", "Blocks successfully produced", nil, nil,
		),
		blocksSkipped: prometheus.NewDesc(
			"solana_validator_blocks_skipped", "Blocks skipped (missed)", nil, nil,
		),
		skipRatePercent: prometheus.NewDesc(
			"solana_validator_skip_rate_percent", "Skip rate percentage", nil, nil,
		),
		solPriceUsd: prometheus.NewDesc(
			"solana_price_usd", "Current SOL price in USD", nil, nil,
		),
		inflationRewardSol: prometheus.NewDesc(
			"solana_validator_inflation_reward_sol", "Inflation reward earned (SOL), grouped by epoch",
			[]string{EpochLabel}, nil,
		),
		inflationRewardUsd: prometheus.NewDesc(
			"solana_validator_inflation_reward_usd", "Inflation reward earned (USD), grouped by epoch",
			[]string{EpochLabel}, nil,
		),
		epochFeesSol: prometheus.NewDesc(
			"solana_validator_epoch_fees_sol",
			"Estimated total fees collected by the validator's blocks this epoch (SOL), "+
				"extrapolated from a bounded sample of recent blocks",
			nil, nil,
		),
		epochFeesUsd: prometheus.NewDesc(
			"solana_validator_epoch_fees_usd",
			"Estimated total fees collected by the validator's blocks this epoch (USD)",
			nil, nil,
		),
		epochFeesSampledSol: prometheus.NewDesc(
			"solana_validator_epoch_fees_sampled_sol", "Exact fee total across the sampled blocks (SOL)", nil, nil,
		),
		epochFeesAvgPerBlockSol: prometheus.NewDesc(
			"solana_validator_epoch_fees_avg_per_block_sol", "Average fee per sampled block (SOL)", nil, nil,
		),
		epochFeesBlocksSampled: prometheus.NewDesc(
			"solana_validator_epoch_fees_blocks_sampled", "Number of blocks sampled for the fee estimate", nil, nil,
		),
		epochFeesBlocksCompleted: prometheus.NewDesc(
			"solana_validator_epoch_fees_blocks_completed",
			"Number of completed leader slots considered by the fee estimate", nil, nil,
		),
		buildInfo: prometheus.NewDesc(
			"solana_exporter_build_info", "Exporter version info", []string{VersionLabel}, nil,
		),
		scrapeDuration: prometheus.NewDesc(
			"solana_exporter_scrape_duration_seconds", "Time spent scraping metrics", nil, nil,
		),
		scrapeTimestamp: prometheus.NewDesc(
			"solana_exporter_scrape_timestamp_seconds", "Unix timestamp of last scrape", nil, nil,
		),
	}
}

func (c *SolanaCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.nodeHealth
	ch <- c.nodeVersion
	ch <- c.epochNumber
	ch <- c.epochSlotIndex
	ch <- c.epochSlotsTotal
	ch <- c.slotHeight
	ch <- c.blockHeight
	ch <- c.transactionCount
	ch <- c.epochProgress
	ch <- c.clusterSlot
	ch <- c.networkTps
	ch <- c.networkSlotTime
	ch <- c.identityBalanceSol
	ch <- c.identityBalanceUsd
	ch <- c.voteBalanceSol
	ch <- c.voteBalanceUsd
	ch <- c.activatedStakeSol
	ch <- c.activatedStakeUsd
	ch <- c.lastVoteSlot
	ch <- c.rootSlot
	ch <- c.commissionPercent
	ch <- c.delinquent
	ch <- c.leaderSlotsAssigned
	ch <- c.leaderSlotsTotal
	ch <- c.blocksProduced
	ch <- c.blocksSkipped
	ch <- c.skipRatePercent
	ch <- c.solPriceUsd
	ch <- c.inflationRewardSol
	ch <- c.inflationRewardUsd
	ch <- c.epochFeesSol
	ch <- c.epochFeesUsd
	ch <- c.epochFeesSampledSol
	ch <- c.epochFeesAvgPerBlockSol
	ch <- c.epochFeesBlocksSampled
	ch <- c.epochFeesBlocksCompleted
	ch <- c.buildInfo
	ch <- c.scrapeDuration
	ch <- c.scrapeTimestamp
}

// collect fans out every configured call concurrently and waits for all of
// them. A failed call is logged and leaves its field nil.
func (c *SolanaCollector) collect(ctx context.Context) *ScrapeResult {
	result := &ScrapeResult{}
	var wg sync.WaitGroup
	run := func(name string, call func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := call(); err != nil {
				c.logger.Warnf("failed to collect %s: %v", name, err)
			}
		}()
	}

	if c.localClient != nil {
		run("health", func() error {
			health, err := c.localClient.GetHealth(ctx)
			if err != nil {
				return err
			}
			result.Health = &health
			return nil
		})
	}
	run("version", func() error {
		version, err := c.rpcClient.GetVersion(ctx)
		if err != nil {
			return err
		}
		result.Version = &version
		return nil
	})
	run("epoch_info", func() error {
		epochInfo, err := c.rpcClient.GetEpochInfo(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		result.EpochInfo = epochInfo
		return nil
	})
	run("slot", func() error {
		slot, err := c.rpcClient.GetSlot(ctx, rpc.CommitmentFinalized)
		if err != nil {
			return err
		}
		result.Slot = &slot
		return nil
	})
	run("performance", func() error {
		samples, err := c.rpcClient.GetRecentPerformanceSamples(ctx, performanceSampleLimit)
		if err != nil {
			return err
		}
		result.Performance = samples
		return nil
	})
	run("sol_price", func() error {
		quote, err := c.priceClient.GetSolPrice(ctx)
		if err != nil {
			return err
		}
		result.SolPrice = &quote
		return nil
	})

	if c.config.IdentityKey != "" {
		run("identity_balance", func() error {
			balance, err := c.rpcClient.GetBalance(ctx, rpc.CommitmentFinalized, c.config.IdentityKey)
			if err != nil {
				return err
			}
			result.IdentityBalance = &balance
			return nil
		})
		run("leader_schedule", func() error {
			schedule, err := c.rpcClient.GetLeaderSchedule(ctx, rpc.CommitmentFinalized, c.config.IdentityKey)
			if err != nil {
				return err
			}
			result.LeaderSchedule = schedule
			return nil
		})
		run("block_production", func() error {
			production, err := c.rpcClient.GetBlockProduction(ctx, rpc.CommitmentFinalized, c.config.IdentityKey)
			if err != nil {
				return err
			}
			result.BlockProduction = production
			return nil
		})
		run("epoch_fees", func() error {
			estimate, err := estimateEpochFees(ctx, c.rpcClient, c.config.IdentityKey)
			if err != nil {
				return err
			}
			result.EpochFees = estimate
			return nil
		})
	}

	if c.config.VoteKey != "" {
		run("vote_balance", func() error {
			balance, err := c.rpcClient.GetBalance(ctx, rpc.CommitmentFinalized, c.config.VoteKey)
			if err != nil {
				return err
			}
			result.VoteBalance = &balance
			return nil
		})
		run("vote_accounts", func() error {
			voteAccounts, err := c.rpcClient.GetVoteAccounts(ctx, rpc.CommitmentFinalized, c.config.VoteKey)
			if err != nil {
				return err
			}
			result.VoteAccounts = voteAccounts
			return nil
		})
		run("inflation_rewards", func() error {
			rewards, err := fetchInflationRewards(ctx, c.rpcClient, c.config.VoteKey)
			if err != nil {
				return err
			}
			result.InflationRewards = rewards
			return nil
		})
	}

	wg.Wait()
	return result
}

func gauge(ch chan<- prometheus.Metric, desc *prometheus.Desc, value float64, labels ...string) {
	ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, value, labels...)
}

// emit maps a scrape result onto gauges. It is a pure function of the bag:
// metrics whose inputs are absent are omitted, never emitted as zero.
func (c *SolanaCollector) emit(result *ScrapeResult, ch chan<- prometheus.Metric) {
	if result.Health != nil {
		healthValue := float64(0)
		if *result.Health == "ok" {
			healthValue = 1
		}
		gauge(ch, c.nodeHealth, healthValue)
	}

	if result.Version != nil {
		gauge(ch, c.nodeVersion, 1, *result.Version)
	}

	if result.EpochInfo != nil {
		info := result.EpochInfo
		gauge(ch, c.epochNumber, float64(info.Epoch))
		gauge(ch, c.epochSlotIndex, float64(info.SlotIndex))
		gauge(ch, c.epochSlotsTotal, float64(info.SlotsInEpoch))
		gauge(ch, c.slotHeight, float64(info.AbsoluteSlot))
		gauge(ch, c.blockHeight, float64(info.BlockHeight))
		gauge(ch, c.transactionCount, float64(info.TransactionCount))

		progress := float64(0)
		if info.SlotsInEpoch > 0 {
			progress = float64(info.SlotIndex) / float64(info.SlotsInEpoch) * 100
		}
		gauge(ch, c.epochProgress, progress)
	}

	if result.Slot != nil {
		gauge(ch, c.clusterSlot, float64(*result.Slot))
	}

	if len(result.Performance) > 0 {
		sample := result.Performance[0]
		tps := float64(0)
		if sample.SamplePeriodSecs > 0 {
			tps = float64(sample.NumTransactions) / float64(sample.SamplePeriodSecs)
		}
		gauge(ch, c.networkTps, tps)

		slotTimeMs := float64(0)
		if sample.NumSlots > 0 {
			slotTimeMs = 1000 * float64(sample.SamplePeriodSecs) / float64(sample.NumSlots)
		}
		gauge(ch, c.networkSlotTime, slotTimeMs)
	}

	if result.IdentityBalance != nil {
		sol := lamportsToSol(*result.IdentityBalance)
		gauge(ch, c.identityBalanceSol, sol)
		if result.SolPrice != nil {
			gauge(ch, c.identityBalanceUsd, sol * *result.SolPrice)
		}
	}

	if result.VoteBalance != nil {
		sol := lamportsToSol(*result.VoteBalance)
		gauge(ch, c.voteBalanceSol, sol)
		if result.SolPrice != nil {
			gauge(ch, c.voteBalanceUsd, sol * *result.SolPrice)
		}
	}

	if result.VoteAccounts != nil {
		c.emitVoteAccount(result, ch)
	}

	if result.LeaderSchedule != nil {
		assigned := len(result.LeaderSchedule[c.config.IdentityKey])
		gauge(ch, c.leaderSlotsAssigned, float64(assigned))
	}

	if result.BlockProduction != nil {
		if stats, ok := result.BlockProduction.ByIdentity[c.config.IdentityKey]; ok {
			skipped := stats.LeaderSlots - stats.BlocksProduced
			gauge(ch, c.leaderSlotsTotal, float64(stats.LeaderSlots))
			gauge(ch, c.blocksProduced, float64(stats.BlocksProduced))
			gauge(ch, c.blocksSkipped, float64(skipped))

			skipRate := float64(0)
			if stats.LeaderSlots > 0 {
				skipRate = float64(skipped) / float64(stats.LeaderSlots) * 100
			}
			gauge(ch, c.skipRatePercent, skipRate)
		}
	}

	if result.SolPrice != nil {
		gauge(ch, c.solPriceUsd, *result.SolPrice)
	}

	for _, reward := range result.InflationRewards {
		epoch := strconv.FormatInt(reward.Epoch, 10)
		gauge(ch, c.inflationRewardSol, reward.AmountSol, epoch)
		if result.SolPrice != nil {
			gauge(ch, c.inflationRewardUsd, reward.AmountSol * *result.SolPrice, epoch)
		}
	}

	if result.EpochFees != nil {
		fees := result.EpochFees
		gauge(ch, c.epochFeesSol, fees.TotalFeesSol)
		gauge(ch, c.epochFeesSampledSol, fees.SampledFeesSol)
		gauge(ch, c.epochFeesAvgPerBlockSol, fees.AvgFeePerBlock)
		gauge(ch, c.epochFeesBlocksSampled, float64(fees.BlocksSampled))
		gauge(ch, c.epochFeesBlocksCompleted, float64(fees.BlocksCompleted))
		if result.SolPrice != nil {
			gauge(ch, c.epochFeesUsd, fees.TotalFeesSol * *result.SolPrice)
		}
	}

	gauge(ch, c.buildInfo, 1, exporterVersion)
}

// emitVoteAccount emits the gauges describing the configured vote account.
// The vote-accounts call is filtered by vote pubkey, so the response holds
// at most our validator, in either the current or the delinquent list.
func (c *SolanaCollector) emitVoteAccount(result *ScrapeResult, ch chan<- prometheus.Metric) {
	var (
		account         *rpc.VoteAccount
		delinquentValue float64
	)
	accounts := result.VoteAccounts
	switch {
	case len(accounts.Delinquent) > 0:
		account, delinquentValue = &accounts.Delinquent[0], 1
	case len(accounts.Current) > 0:
		account, delinquentValue = &accounts.Current[0], 0
	default:
		return
	}

	stakeSol := lamportsToSol(account.ActivatedStake)
	gauge(ch, c.activatedStakeSol, stakeSol)
	if result.SolPrice != nil {
		gauge(ch, c.activatedStakeUsd, stakeSol * *result.SolPrice)
	}
	gauge(ch, c.lastVoteSlot, float64(account.LastVote))
	gauge(ch, c.rootSlot, float64(account.RootSlot))
	gauge(ch, c.commissionPercent, float64(account.Commission))
	gauge(ch, c.delinquent, delinquentValue)
}

func (c *SolanaCollector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()
	start := time.Now()

	result := c.collect(ctx)
	c.emit(result, ch)

	duration := math.Round(time.Since(start).Seconds()*1000) / 1000
	gauge(ch, c.scrapeDuration, duration)
	gauge(ch, c.scrapeTimestamp, float64(time.Now().Unix()))
}

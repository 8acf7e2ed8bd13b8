package rpc

import "encoding/json"

type (
	// Response is a decoded JSON-RPC response envelope.
	Response[T any] struct {
		Jsonrpc string   `json:"jsonrpc"`
		Result  T        `json:"result"`
		Error   RPCError `json:"error"`
		Id      int      `json:"id"`
	}

	// contextualResult wraps result types that the node nests under a
	// "value" key alongside the slot context.
	contextualResult[T any] struct {
		Value   T `json:"value"`
		Context struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
	}

	EpochInfo struct {
		// Current absolute slot in epoch
		AbsoluteSlot int64 `json:"absoluteSlot"`
		// Current block height
		BlockHeight int64 `json:"blockHeight"`
		// Current epoch number
		Epoch int64 `json:"epoch"`
		// Current slot relative to the start of the current epoch
		SlotIndex int64 `json:"slotIndex"`
		// Number of slots in this epoch
		SlotsInEpoch int64 `json:"slotsInEpoch"`
		// Total number of transactions processed without error since genesis
		TransactionCount int64 `json:"transactionCount"`
	}

	PerformanceSample struct {
		Slot             int64 `json:"slot"`
		NumTransactions  int64 `json:"numTransactions"`
		NumSlots         int64 `json:"numSlots"`
		SamplePeriodSecs int64 `json:"samplePeriodSecs"`
	}

	VoteAccount struct {
		ActivatedStake   int64   `json:"activatedStake"`
		Commission       int64   `json:"commission"`
		EpochCredits     [][]int `json:"epochCredits"`
		EpochVoteAccount bool    `json:"epochVoteAccount"`
		LastVote         int64   `json:"lastVote"`
		NodePubkey       string  `json:"nodePubkey"`
		RootSlot         int64   `json:"rootSlot"`
		VotePubkey       string  `json:"votePubkey"`
	}

	VoteAccounts struct {
		Current    []VoteAccount `json:"current"`
		Delinquent []VoteAccount `json:"delinquent"`
	}

	HostProduction struct {
		LeaderSlots    int64
		BlocksProduced int64
	}

	BlockProductionRange struct {
		FirstSlot int64 `json:"firstSlot"`
		LastSlot  int64 `json:"lastSlot"`
	}

	BlockProduction struct {
		ByIdentity map[string]HostProduction `json:"byIdentity"`
		Range      BlockProductionRange      `json:"range"`
	}

	InflationReward struct {
		Amount        int64 `json:"amount"`
		Commission    int64 `json:"commission"`
		EffectiveSlot int64 `json:"effectiveSlot"`
		Epoch         int64 `json:"epoch"`
		PostBalance   int64 `json:"postBalance"`
	}

	TransactionMeta struct {
		Fee                  int64 `json:"fee"`
		ComputeUnitsConsumed int64 `json:"computeUnitsConsumed"`
	}

	Transaction struct {
		Meta        *TransactionMeta `json:"meta"`
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
			Signatures []string `json:"signatures"`
		} `json:"transaction"`
	}

	Block struct {
		Blockhash         string        `json:"blockhash"`
		BlockHeight       *int64        `json:"blockHeight"`
		BlockTime         *int64        `json:"blockTime"`
		ParentSlot        int64         `json:"parentSlot"`
		PreviousBlockhash string        `json:"previousBlockhash"`
		Transactions      []Transaction `json:"transactions"`
	}
)

// UnmarshalJSON decodes the getBlockProduction per-identity value, which the
// node encodes as a two-element array of [leaderSlots, blocksProduced].
func (hp *HostProduction) UnmarshalJSON(data []byte) error {
	var arr [2]int64
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	hp.LeaderSlots, hp.BlocksProduced = arr[0], arr[1]
	return nil
}

// MarshalJSON is the inverse of UnmarshalJSON, used by the test mock server.
func (hp HostProduction) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{hp.LeaderSlots, hp.BlocksProduced})
}

package rpc

import "fmt"

// Custom RPC error codes returned by the node, see
// https://github.com/anza-xyz/agave/blob/master/rpc-client-api/src/custom_error.rs
const (
	BlockCleanedUpCode             = -32001
	BlockNotAvailableCode          = -32004
	NodeUnhealthyCode              = -32005
	SlotSkippedCode                = -32007
	LongTermStorageSlotSkippedCode = -32009
)

// RPCError is the error object of a JSON-RPC response envelope. A non-zero
// Code means the node rejected the call at the application level; callers
// that need to distinguish specific conditions (e.g. skipped slots) unwrap
// it with errors.As and inspect Code/Message.
type RPCError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Method  string `json:"-"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s rpc error (code %d): %s", e.Method, e.Code, e.Message)
}

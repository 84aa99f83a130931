package core

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRPCResponse is returned when the node answers an RPC with no
	// data. It is a hard error, not a transient transport fault.
	ErrEmptyRPCResponse = errors.New("chain rpc returned no data")
	// ErrOutOfSync indicates the projection and the chain cannot be
	// reconciled without a full resync.
	ErrOutOfSync = errors.New("db and chain are unrecoverably out of sync")
	// ErrNotExecutable is returned when a previously persisted block still
	// fails to execute after a retry.
	ErrNotExecutable = errors.New("block not executable")
	// ErrHashMismatch is returned when downloaded metadata does not hash to
	// the value announced on chain.
	ErrHashMismatch = errors.New("metadata hash mismatch")
	// ErrUnknownAlgorithm is returned at startup for an unrecognized
	// ENCRYPTION_ALGORITHM value.
	ErrUnknownAlgorithm = errors.New("unknown hash algorithm")
	// ErrUnknownUploadDriver is returned at startup for an unrecognized
	// FILE_UPLOAD_CLASS value.
	ErrUnknownUploadDriver = errors.New("unknown file upload driver")
)

// ParseBlockError wraps any failure raised inside the event handler pipeline.
// The surrounding transaction is rolled back and the block left un-executed.
type ParseBlockError struct {
	BlockNumber int64
	Err         error
}

func (e *ParseBlockError) Error() string {
	return fmt.Sprintf("error while parsing block #%d: %v", e.BlockNumber, e.Err)
}

func (e *ParseBlockError) Unwrap() error { return e.Err }

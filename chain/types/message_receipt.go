package types

import (
	"bytes"

	"github.com/filecoin-project/go-state-types/exitcode"
)

// MessageReceipt is the result of a message's execution, committed to
// chain state alongside the message itself.
type MessageReceipt struct {
	ExitCode exitcode.ExitCode
	Return   []byte
	GasUsed  int64
}

func (mr *MessageReceipt) Equals(o *MessageReceipt) bool {
	return mr.ExitCode == o.ExitCode && bytes.Equal(mr.Return, o.Return) && mr.GasUsed == o.GasUsed
}

package builtin

import (
	"io"

	"github.com/filecoin-project/go-state-types/exitcode"

	"github.com/asterchain/aster/chain/actors/runtime"
)

// RequireNoErr aborts with the given exit code if err is non-nil.
func RequireNoErr(rt runtime.Runtime, err error, code exitcode.ExitCode, msg string, args ...interface{}) {
	if err != nil {
		rt.Abortf(code, msg+": %s", append(args, err)...)
	}
}

func RequireParam(rt runtime.Runtime, predicate bool, msg string, args ...interface{}) {
	if !predicate {
		rt.Abortf(exitcode.ErrIllegalArgument, msg, args...)
	}
}

// RequireSuccess aborts with the callee's exit code, preserving it for
// the caller's receipt.
func RequireSuccess(rt runtime.Runtime, e exitcode.ExitCode, msg string, args ...interface{}) {
	if !e.IsSuccess() {
		rt.Abortf(e, msg, args...)
	}
}

// Discard is a sink for Send returns nobody cares about.
type Discard struct{}

func (d *Discard) MarshalCBOR(_ io.Writer) error {
	// serialize to nothing
	return nil
}

func (d *Discard) UnmarshalCBOR(_ io.Reader) error {
	// deserialize (and ignore) anything
	return nil
}

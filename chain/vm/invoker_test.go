package vm

import (
	"fmt"
	"io"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/require"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/asterchain/aster/chain/actors"
	"github.com/asterchain/aster/chain/actors/aerrors"
	"github.com/asterchain/aster/chain/actors/builtin"
	vmr "github.com/asterchain/aster/chain/actors/runtime"
	"github.com/asterchain/aster/chain/types"
)

type basicContract struct{}

type basicParams struct {
	B byte
}

func (b *basicParams) MarshalCBOR(w io.Writer) error {
	return cbg.WriteMajorTypeHeader(w, cbg.MajUnsignedInt, uint64(b.B))
}

func (b *basicParams) UnmarshalCBOR(r io.Reader) error {
	maj, val, err := cbg.CborReadHeader(r)
	if err != nil {
		return err
	}

	if maj != cbg.MajUnsignedInt {
		return fmt.Errorf("bad cbor type")
	}

	b.B = byte(val)
	return nil
}

func (b basicContract) Exports() []interface{} {
	return []interface{}{
		b.InvokeSomething0,
		b.BadParam,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		nil,
		b.InvokeSomething10,
	}
}

func (basicContract) InvokeSomething0(rt vmr.Runtime, params *basicParams) *abi.EmptyValue {
	rt.Abortf(exitcode.ExitCode(params.B), "params.B")
	return nil
}

func (basicContract) BadParam(rt vmr.Runtime, params *basicParams) *abi.EmptyValue {
	rt.Abortf(255, "bad params")
	return nil
}

func (basicContract) InvokeSomething10(rt vmr.Runtime, params *basicParams) *abi.EmptyValue {
	rt.Abortf(exitcode.ExitCode(params.B+10), "params.B")
	return nil
}

func testRuntime() *Runtime {
	return &Runtime{
		vmsg: &types.Message{
			From:  builtin.SystemActorAddr,
			To:    builtin.InitActorAddr,
			Value: types.NewInt(0),
		},
	}
}

func TestInvokerBasic(t *testing.T) {
	inv := ActorRegistry{}
	code, err := inv.transform(basicContract{})
	require.NoError(t, err)

	{
		bParam, err := actors.SerializeParams(&basicParams{B: 1})
		require.NoError(t, err)

		_, aerr := code[0](testRuntime(), bParam)

		require.Equal(t, exitcode.ExitCode(1), aerrors.RetCode(aerr), "return code should be 1")
		if aerrors.IsFatal(aerr) {
			t.Fatal("err should not be fatal")
		}
	}

	{
		bParam, err := actors.SerializeParams(&basicParams{B: 2})
		require.NoError(t, err)

		_, aerr := code[10](testRuntime(), bParam)
		require.Equal(t, exitcode.ExitCode(12), aerrors.RetCode(aerr), "return code should be 12")
		if aerrors.IsFatal(aerr) {
			t.Fatal("err should not be fatal")
		}
	}

	{
		// 0x63 is a text string header, not an unsigned int
		_, aerr := code[1](testRuntime(), []byte{0x63})
		if aerrors.IsFatal(aerr) {
			t.Fatal("err should not be fatal")
		}
		require.Equal(t, exitcode.ExitCode(1), aerrors.RetCode(aerr), "return code should be 1")
	}
}

type badContract struct{}

func (b badContract) Exports() []interface{} {
	return []interface{}{
		b.TooManyArgs,
	}
}

func (badContract) TooManyArgs(rt vmr.Runtime, params *basicParams, extra int) *abi.EmptyValue {
	return nil
}

func TestInvokerRejectsBadExports(t *testing.T) {
	inv := ActorRegistry{}
	_, err := inv.transform(badContract{})
	require.Error(t, err)
}

func TestRegistryInvoke(t *testing.T) {
	reg := NewActorRegistry()

	// unassigned method number on a known actor
	_, aerr := reg.Invoke(builtin.AccountActorCodeID, testRuntime(), abi.MethodNum(99), nil)
	require.Equal(t, exitcode.SysErrInvalidMethod, aerrors.RetCode(aerr))

	// unknown code cid
	_, aerr = reg.Invoke(EmptyObjectCid, testRuntime(), abi.MethodNum(1), nil)
	require.Equal(t, exitcode.SysErrorIllegalActor, aerrors.RetCode(aerr))
}

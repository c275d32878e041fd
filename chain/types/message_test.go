package types

import (
	"bytes"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/stretchr/testify/require"

	"github.com/asterchain/aster/build"
)

func mkMessage(t *testing.T) *Message {
	t.Helper()

	to, err := address.NewIDAddress(99)
	require.NoError(t, err)
	from, err := address.NewIDAddress(100)
	require.NoError(t, err)

	return &Message{
		To:         to,
		From:       from,
		Nonce:      34,
		Value:      FromAster(3),
		GasLimit:   123456,
		GasFeeCap:  NewInt(234),
		GasPremium: NewInt(234),
		Method:     6,
		Params:     []byte("some bytes, idk"),
	}
}

func TestMessageRoundTrip(t *testing.T) {
	msg := mkMessage(t)

	ser, err := msg.Serialize()
	require.NoError(t, err)

	out, err := DecodeMessage(ser)
	require.NoError(t, err)
	require.True(t, msg.Equals(out))
	require.Equal(t, msg.Params, out.Params)
}

func TestMessageCidStable(t *testing.T) {
	m1 := mkMessage(t)
	m2 := mkMessage(t)
	require.Equal(t, m1.Cid(), m2.Cid())

	m2.Nonce++
	require.NotEqual(t, m1.Cid(), m2.Cid())
}

func TestEqualCall(t *testing.T) {
	m1 := mkMessage(t)
	m2 := mkMessage(t)
	m2.GasLimit *= 2
	m2.GasPremium = NewInt(1000)

	require.True(t, m1.EqualCall(m2))

	m2.Method = abi.MethodNum(7)
	require.False(t, m1.EqualCall(m2))
}

func TestValidForBlockInclusion(t *testing.T) {
	msg := mkMessage(t)
	require.NoError(t, msg.ValidForBlockInclusion(0))

	tweaked := *msg
	tweaked.Value = BigSub(NewInt(0), NewInt(1))
	require.Error(t, tweaked.ValidForBlockInclusion(0))

	tweaked = *msg
	tweaked.GasLimit = build.BlockGasLimit + 1
	require.Error(t, tweaked.ValidForBlockInclusion(0))

	tweaked = *msg
	tweaked.GasPremium = BigAdd(tweaked.GasFeeCap, NewInt(1))
	require.Error(t, tweaked.ValidForBlockInclusion(0))

	tweaked = *msg
	tweaked.To = address.Undef
	require.Error(t, tweaked.ValidForBlockInclusion(0))
}

func TestRequiredFunds(t *testing.T) {
	msg := mkMessage(t)
	expected := BigMul(msg.GasFeeCap, NewInt(uint64(msg.GasLimit)))
	require.Equal(t, expected, msg.RequiredFunds())
}

func TestReceiptRoundTrip(t *testing.T) {
	rec := &MessageReceipt{
		ExitCode: exitcode.ExitCode(16),
		Return:   []byte("aloha"),
		GasUsed:  12345,
	}

	buf := new(bytes.Buffer)
	require.NoError(t, rec.MarshalCBOR(buf))

	var out MessageReceipt
	require.NoError(t, out.UnmarshalCBOR(buf))
	require.True(t, rec.Equals(&out))
}

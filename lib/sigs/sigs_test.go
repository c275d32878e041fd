package sigs_test

import (
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/crypto"
	"github.com/stretchr/testify/require"

	"github.com/asterchain/aster/lib/sigs"
	_ "github.com/asterchain/aster/lib/sigs/secp"
)

func TestSecpSignVerify(t *testing.T) {
	priv, err := sigs.Generate(crypto.SigTypeSecp256k1)
	require.NoError(t, err)

	pub, err := sigs.ToPublic(crypto.SigTypeSecp256k1, priv)
	require.NoError(t, err)

	addr, err := address.NewSecp256k1Address(pub)
	require.NoError(t, err)

	msg := []byte("message to sign")
	sig, err := sigs.Sign(crypto.SigTypeSecp256k1, priv, msg)
	require.NoError(t, err)

	require.NoError(t, sigs.Verify(sig, addr, msg))

	// tampered message must not verify
	require.Error(t, sigs.Verify(sig, addr, []byte("other message")))

	// wrong signer must not verify
	priv2, err := sigs.Generate(crypto.SigTypeSecp256k1)
	require.NoError(t, err)
	pub2, err := sigs.ToPublic(crypto.SigTypeSecp256k1, priv2)
	require.NoError(t, err)
	addr2, err := address.NewSecp256k1Address(pub2)
	require.NoError(t, err)
	require.Error(t, sigs.Verify(sig, addr2, msg))
}

func TestVerifyRejectsIDAddress(t *testing.T) {
	priv, err := sigs.Generate(crypto.SigTypeSecp256k1)
	require.NoError(t, err)

	msg := []byte("message")
	sig, err := sigs.Sign(crypto.SigTypeSecp256k1, priv, msg)
	require.NoError(t, err)

	ida, err := address.NewIDAddress(101)
	require.NoError(t, err)
	require.Error(t, sigs.Verify(sig, ida, msg))
}

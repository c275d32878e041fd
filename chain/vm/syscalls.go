package vm

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/crypto"
	blake2b "github.com/minio/blake2b-simd"
	"golang.org/x/xerrors"

	vmr "github.com/asterchain/aster/chain/actors/runtime"
	"github.com/asterchain/aster/lib/sigs"
)

// SyscallBuilder builds the syscall handler bound to a runtime; the
// VM wraps the result with gas metering before actors see it.
type SyscallBuilder func(ctx context.Context, rt *Runtime) vmr.Syscalls

func Syscalls() SyscallBuilder {
	return func(ctx context.Context, rt *Runtime) vmr.Syscalls {
		return &syscallShim{
			ctx: ctx,
			rt:  rt,
		}
	}
}

type syscallShim struct {
	ctx context.Context
	rt  *Runtime
}

func (ss *syscallShim) VerifySignature(sig crypto.Signature, addr address.Address, input []byte) error {
	var kaddr address.Address
	switch addr.Protocol() {
	case address.BLS, address.SECP256K1:
		kaddr = addr
	default:
		// ID addresses must be resolved to the key the account was
		// created with.
		ka, err := ResolveToKeyAddr(ss.rt.state, ss.rt.cst, addr)
		if err != nil {
			return xerrors.Errorf("failed to resolve address %s to key address: %w", addr, err)
		}
		kaddr = ka
	}

	return sigs.Verify(&sig, kaddr, input)
}

func (ss *syscallShim) HashBlake2b(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

var _ vmr.Syscalls = (*syscallShim)(nil)

type pricedSyscalls struct {
	under     vmr.Syscalls
	pl        Pricelist
	chargeGas func(GasCharge)
}

func (ps pricedSyscalls) VerifySignature(signature crypto.Signature, signer address.Address, plaintext []byte) error {
	c, err := ps.pl.OnVerifySignature(signature.Type, len(plaintext))
	if err != nil {
		return err
	}
	ps.chargeGas(c)

	return ps.under.VerifySignature(signature, signer, plaintext)
}

func (ps pricedSyscalls) HashBlake2b(data []byte) [32]byte {
	ps.chargeGas(ps.pl.OnHashing(len(data)))

	return ps.under.HashBlake2b(data)
}

var _ vmr.Syscalls = pricedSyscalls{}

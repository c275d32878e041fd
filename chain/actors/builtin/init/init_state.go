package init

import (
	addr "github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/asterchain/aster/chain/actors/adt"
	"github.com/asterchain/aster/chain/actors/builtin"
)

type State struct {
	// AddressMap is a HAMT from robust or pubkey address bytes to the
	// assigned actor ID (cbg.CborInt).
	AddressMap  cid.Cid
	NextID      abi.ActorID
	NetworkName string
}

func ConstructState(addressMapRoot cid.Cid, networkName string) *State {
	return &State{
		AddressMap:  addressMapRoot,
		NextID:      abi.ActorID(builtin.FirstNonSingletonActorId),
		NetworkName: networkName,
	}
}

// ResolveAddress resolves an address to an ID address. ID addresses
// resolve to themselves whether or not an actor exists at them; other
// protocols resolve through the address map.
func (st *State) ResolveAddress(store adt.Store, address addr.Address) (addr.Address, bool, error) {
	if address.Protocol() == addr.ID {
		return address, true, nil
	}

	m, err := adt.AsMap(store, st.AddressMap)
	if err != nil {
		return addr.Undef, false, xerrors.Errorf("failed to load address map: %w", err)
	}

	var actorID cbg.CborInt
	found, err := m.Get(adt.AddrKey(address), &actorID)
	if err != nil {
		return addr.Undef, false, xerrors.Errorf("failed to get from address map: %w", err)
	}
	if !found {
		return addr.Undef, false, nil
	}

	idAddr, err := addr.NewIDAddress(uint64(actorID))
	return idAddr, true, err
}

// MapAddressToNewID allocates the next ID and maps the given address
// to it. Fails if the address is already bound.
func (st *State) MapAddressToNewID(store adt.Store, address addr.Address) (addr.Address, error) {
	m, err := adt.AsMap(store, st.AddressMap)
	if err != nil {
		return addr.Undef, xerrors.Errorf("failed to load address map: %w", err)
	}

	var existing cbg.CborInt
	found, err := m.Get(adt.AddrKey(address), &existing)
	if err != nil {
		return addr.Undef, xerrors.Errorf("failed to check address map: %w", err)
	}
	if found {
		return addr.Undef, xerrors.Errorf("address %s already bound to ID %d", address, existing)
	}

	actorID := cbg.CborInt(st.NextID)
	st.NextID++

	if err := m.Put(adt.AddrKey(address), &actorID); err != nil {
		return addr.Undef, xerrors.Errorf("map address failed to store entry: %w", err)
	}
	amr, err := m.Root()
	if err != nil {
		return addr.Undef, xerrors.Errorf("failed to get address map root: %w", err)
	}
	st.AddressMap = amr

	return addr.NewIDAddress(uint64(actorID))
}

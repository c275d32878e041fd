package builtin

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

// Addresses of singleton actors, instantiated at genesis and never
// created again.
var (
	SystemActorAddr     = mustIDAddress(0)
	InitActorAddr       = mustIDAddress(1)
	RewardActorAddr     = mustIDAddress(2)
	CronActorAddr       = mustIDAddress(3)
	BurntFundsActorAddr = mustIDAddress(99)
)

// FirstNonSingletonActorId is where the init actor starts assigning
// IDs; everything below is reserved for singletons.
const FirstNonSingletonActorId = 100

func mustIDAddress(id uint64) address.Address {
	a, err := address.NewIDAddress(id)
	if err != nil {
		panic(err)
	}
	return a
}

var (
	SystemActorCodeID  cid.Cid
	InitActorCodeID    cid.Cid
	RewardActorCodeID  cid.Cid
	CronActorCodeID    cid.Cid
	AccountActorCodeID cid.Cid

	singletonCodes map[cid.Cid]struct{}
)

func init() {
	// Code "CIDs" are identity-hashed names. Actor code is compiled
	// into the node, so the CID only has to identify it, not address
	// real bytes.
	builder := cid.V1Builder{Codec: cid.Raw, MhType: mh.IDENTITY}
	mk := func(name string) cid.Cid {
		c, err := builder.Sum([]byte(name))
		if err != nil {
			panic(err)
		}
		return c
	}

	SystemActorCodeID = mk("aster/1/system")
	InitActorCodeID = mk("aster/1/init")
	RewardActorCodeID = mk("aster/1/reward")
	CronActorCodeID = mk("aster/1/cron")
	AccountActorCodeID = mk("aster/1/account")

	singletonCodes = map[cid.Cid]struct{}{
		SystemActorCodeID: {},
		InitActorCodeID:   {},
		RewardActorCodeID: {},
		CronActorCodeID:   {},
	}
}

func IsAccountActor(code cid.Cid) bool {
	return code == AccountActorCodeID
}

// IsSingletonActor returns true for code that may never be
// instantiated via the init actor.
func IsSingletonActor(code cid.Cid) bool {
	_, ok := singletonCodes[code]
	return ok
}

func IsBuiltinActor(code cid.Cid) bool {
	return IsSingletonActor(code) || IsAccountActor(code)
}

// ActorNameByCode is for logs and state dumps.
func ActorNameByCode(code cid.Cid) string {
	switch code {
	case SystemActorCodeID:
		return "aster/1/system"
	case InitActorCodeID:
		return "aster/1/init"
	case RewardActorCodeID:
		return "aster/1/reward"
	case CronActorCodeID:
		return "aster/1/cron"
	case AccountActorCodeID:
		return "aster/1/account"
	default:
		return "<unknown>"
	}
}

// Method numbers shared by all actors.
const (
	MethodSend        = abi.MethodNum(0)
	MethodConstructor = abi.MethodNum(1)
)

var MethodsAccount = struct {
	Constructor   abi.MethodNum
	PubkeyAddress abi.MethodNum
}{MethodConstructor, 2}

var MethodsInit = struct {
	Constructor abi.MethodNum
	Exec        abi.MethodNum
}{MethodConstructor, 2}

var MethodsReward = struct {
	Constructor      abi.MethodNum
	AwardBlockReward abi.MethodNum
}{MethodConstructor, 2}

var MethodsCron = struct {
	Constructor abi.MethodNum
	EpochTick   abi.MethodNum
}{MethodConstructor, 2}

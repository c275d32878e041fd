package vm

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"
	cbg "github.com/whyrusleeping/cbor-gen"
	"golang.org/x/xerrors"

	"github.com/asterchain/aster/chain/actors/aerrors"
	"github.com/asterchain/aster/chain/actors/builtin"
	"github.com/asterchain/aster/chain/actors/builtin/account"
	"github.com/asterchain/aster/chain/actors/builtin/cron"
	init_ "github.com/asterchain/aster/chain/actors/builtin/init"
	"github.com/asterchain/aster/chain/actors/builtin/reward"
	"github.com/asterchain/aster/chain/actors/builtin/system"
	vmr "github.com/asterchain/aster/chain/actors/runtime"
)

// ActorRegistry maps actor code CIDs to their dispatch tables. The
// tables are built once by reflection and then called directly.
type ActorRegistry struct {
	actors map[cid.Cid]*actorInfo
}

type invokeFunc func(rt vmr.Runtime, params []byte) ([]byte, aerrors.ActorError)
type nativeCode []invokeFunc

type actorInfo struct {
	methods nativeCode
	// stateType is nil for actors with no state of their own.
	stateType reflect.Type
}

// Invokee exposes an actor's method table. Index i of Exports holds
// method number i; nil entries are unassigned method numbers.
type Invokee interface {
	Exports() []interface{}
}

// NewActorRegistry creates a registry with all built-in actors
// installed.
func NewActorRegistry() *ActorRegistry {
	inv := &ActorRegistry{actors: make(map[cid.Cid]*actorInfo)}

	inv.Register(builtin.SystemActorCodeID, system.Actor{}, nil)
	inv.Register(builtin.InitActorCodeID, init_.Actor{}, init_.State{})
	inv.Register(builtin.RewardActorCodeID, reward.Actor{}, reward.State{})
	inv.Register(builtin.CronActorCodeID, cron.Actor{}, cron.State{})
	inv.Register(builtin.AccountActorCodeID, account.Actor{}, account.State{})

	return inv
}

func (ar *ActorRegistry) Invoke(codeCid cid.Cid, rt vmr.Runtime, method abi.MethodNum, params []byte) ([]byte, aerrors.ActorError) {
	act, ok := ar.actors[codeCid]
	if !ok {
		log.Errorf("no code for actor %s (Addr: %s)", codeCid, rt.Receiver())
		return nil, aerrors.Newf(exitcode.SysErrorIllegalActor, "no code for actor %s(%d)(%s)", codeCid, method, hex.EncodeToString(params))
	}
	if method >= abi.MethodNum(len(act.methods)) || act.methods[method] == nil {
		return nil, aerrors.Newf(exitcode.SysErrInvalidMethod, "no method %d on actor", method)
	}
	return act.methods[method](rt, params)
}

func (ar *ActorRegistry) Register(code cid.Cid, instance Invokee, state interface{}) {
	methods, err := ar.transform(instance)
	if err != nil {
		panic(xerrors.Errorf("failed to register actor: %w", err))
	}

	info := &actorInfo{methods: methods}
	if state != nil {
		info.stateType = reflect.TypeOf(state)
	}
	ar.actors[code] = info
}

func (*ActorRegistry) transform(instance Invokee) (nativeCode, error) {
	itype := reflect.TypeOf(instance)
	exports := instance.Exports()
	runtimeType := reflect.TypeOf((*vmr.Runtime)(nil)).Elem()
	for i, m := range exports {
		i := i
		newErr := func(format string, args ...interface{}) error {
			str := fmt.Sprintf(format, args...)
			return fmt.Errorf("transform(%s) export(%d): %s", itype.Name(), i, str)
		}

		if m == nil {
			continue
		}

		meth := reflect.ValueOf(m)
		t := meth.Type()
		if t.Kind() != reflect.Func {
			return nil, newErr("is not a function")
		}
		if t.NumIn() != 2 {
			return nil, newErr("wrong number of inputs should be: " +
				"vmr.Runtime, <parameter>")
		}
		if t.In(0) != runtimeType {
			return nil, newErr("first argument should be vmr.Runtime")
		}
		if t.In(1).Kind() != reflect.Ptr {
			return nil, newErr("second argument should be of kind reflect.Ptr")
		}

		if t.NumOut() != 1 {
			return nil, newErr("wrong number of outputs should be: " +
				"cbg.CBORMarshaler")
		}
		o0 := t.Out(0)
		if !o0.Implements(reflect.TypeOf((*cbg.CBORMarshaler)(nil)).Elem()) {
			return nil, newErr("output needs to implement cbg.CBORMarshaler")
		}
	}
	code := make(nativeCode, len(exports))
	for id, m := range exports {
		if m == nil {
			continue
		}

		meth := reflect.ValueOf(m)
		code[id] = reflect.MakeFunc(reflect.TypeOf((invokeFunc)(nil)),
			func(in []reflect.Value) []reflect.Value {
				paramT := meth.Type().In(1).Elem()
				param := reflect.New(paramT)

				inBytes := in[1].Interface().([]byte)
				if err := DecodeParams(inBytes, param.Interface()); err != nil {
					aerr := aerrors.Absorb(err, 1, "failed to decode parameters")
					return []reflect.Value{
						reflect.ValueOf([]byte{}),
						// Below is a hack, fixed in Go 1.13
						// https://git.io/fjXU6
						reflect.ValueOf(&aerr).Elem(),
					}
				}
				rt := in[0].Interface().(*Runtime)
				rval, aerror := rt.shimCall(func() interface{} {
					ret := meth.Call([]reflect.Value{
						reflect.ValueOf(rt),
						param,
					})
					return ret[0].Interface()
				})

				return []reflect.Value{
					reflect.ValueOf(&rval).Elem(),
					reflect.ValueOf(&aerror).Elem(),
				}
			}).Interface().(invokeFunc)

	}
	return code, nil
}

func DecodeParams(b []byte, out interface{}) error {
	um, ok := out.(cbg.CBORUnmarshaler)
	if !ok {
		return fmt.Errorf("type %T does not implement UnmarshalCBOR", out)
	}

	return um.UnmarshalCBOR(bytes.NewReader(b))
}

// DumpActorState decodes an actor's head into the registered state type
// for that actor's code. Stateless actors dump as nil.
func (ar *ActorRegistry) DumpActorState(codeCid cid.Cid, b []byte) (interface{}, error) {
	act, ok := ar.actors[codeCid]
	if !ok {
		return nil, xerrors.Errorf("state type for actor %s not found", codeCid)
	}
	if act.stateType == nil {
		return nil, nil
	}

	um := reflect.New(act.stateType).Interface().(cbg.CBORUnmarshaler)
	if err := um.UnmarshalCBOR(bytes.NewReader(b)); err != nil {
		return nil, xerrors.Errorf("unmarshaling actor state: %w", err)
	}

	return um, nil
}

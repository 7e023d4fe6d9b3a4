package impl

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.dedis.ch/contractsim/contract"
	"go.dedis.ch/contractsim/types"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// hostFunction is a function of the host module. Its implementation reads
// parameters from and writes results to the stack.
type hostFunction struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
	fn      func(ctx context.Context, x *execution, m api.Module, stack []uint64)
}

func (hf hostFunction) goFunc() api.GoModuleFunc {
	return func(ctx context.Context, m api.Module, stack []uint64) {
		x := executionFrom(ctx)
		x.charge(hostCallCost)
		hf.fn(ctx, x, m, stack)
	}
}

func vals(v ...api.ValueType) []api.ValueType {
	return v
}

var hostFunctions = []hostFunction{
	{"get_parameter_size", vals(i32), vals(i32), getParameterSize},
	{"get_parameter_section", vals(i32, i32, i32, i32), vals(i32), getParameterSection},
	{"get_policy_section", vals(i32, i32, i32), vals(i32), getPolicySection},
	{"get_slot_time", nil, vals(i64), getSlotTime},
	{"log_event", vals(i32, i32), vals(i32), logEvent},
	{"write_output", vals(i32, i32, i32), vals(i32), writeOutput},

	{"state_size", vals(i32, i32), vals(i32), stateSize},
	{"state_read", vals(i32, i32, i32, i32, i32), vals(i32), stateRead},
	{"state_write", vals(i32, i32, i32, i32), vals(i32), stateWrite},
	{"state_delete", vals(i32, i32), vals(i32), stateDelete},
	{"state_delete_prefix", vals(i32, i32), vals(i32), stateDeletePrefix},

	{"get_init_origin", vals(i32), nil, getInitOrigin},

	{"get_receive_invoker", vals(i32), nil, getReceiveInvoker},
	{"get_receive_self_address", vals(i32), nil, getReceiveSelfAddress},
	{"get_receive_self_balance", nil, vals(i64), getReceiveSelfBalance},
	{"get_receive_sender", vals(i32), vals(i32), getReceiveSender},
	{"get_receive_owner", vals(i32), nil, getReceiveOwner},
	{"get_receive_entrypoint_size", nil, vals(i32), getReceiveEntrypointSize},
	{"get_receive_entrypoint", vals(i32), nil, getReceiveEntrypoint},
	{"invoke", vals(i32, i32, i32), vals(i64), invoke},
	{"upgrade", vals(i32), vals(i64), upgrade},
}

var hostFunctionsByName = func() map[string]hostFunction {
	byName := make(map[string]hostFunction, len(hostFunctions))
	for _, hf := range hostFunctions {
		byName[hf.name] = hf
	}
	return byName
}()

func read(x *execution, m api.Module, ptr, length uint32) []byte {
	x.chargeBytes(int(length))
	mem := m.Memory()
	if mem == nil {
		panic(trap("module has no memory"))
	}
	b, ok := mem.Read(ptr, length)
	if !ok {
		panic(trap("memory access out of bounds"))
	}
	return append([]byte(nil), b...)
}

func write(x *execution, m api.Module, ptr uint32, data []byte) {
	x.chargeBytes(len(data))
	mem := m.Memory()
	if mem == nil {
		panic(trap("module has no memory"))
	}
	if !mem.Write(ptr, data) {
		panic(trap("memory access out of bounds"))
	}
}

// section copies up to length bytes of data starting at offset to ptr and
// returns how many were copied, or -1 if offset is past the end.
func section(x *execution, m api.Module, data []byte, ptr, length, offset uint32) int32 {
	if uint64(offset) > uint64(len(data)) {
		return -1
	}
	chunk := data[offset:]
	if uint64(len(chunk)) > uint64(length) {
		chunk = chunk[:length]
	}
	write(x, m, ptr, chunk)
	return int32(len(chunk))
}

func getParameterSize(_ context.Context, x *execution, _ api.Module, stack []uint64) {
	i := api.DecodeU32(stack[0])
	if uint64(i) >= uint64(len(x.params)) {
		stack[0] = api.EncodeI32(-1)
		return
	}
	stack[0] = api.EncodeI32(int32(len(x.params[i])))
}

func getParameterSection(_ context.Context, x *execution, m api.Module, stack []uint64) {
	i := api.DecodeU32(stack[0])
	if uint64(i) >= uint64(len(x.params)) {
		stack[0] = api.EncodeI32(-1)
		return
	}
	ptr, length, offset := api.DecodeU32(stack[1]), api.DecodeU32(stack[2]), api.DecodeU32(stack[3])
	stack[0] = api.EncodeI32(section(x, m, x.params[i], ptr, length, offset))
}

func getPolicySection(_ context.Context, x *execution, m api.Module, stack []uint64) {
	ptr, length, offset := api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	stack[0] = api.EncodeI32(section(x, m, x.policies, ptr, length, offset))
}

func getSlotTime(_ context.Context, x *execution, _ api.Module, stack []uint64) {
	stack[0] = uint64(x.slotTime.Millis())
}

// logEvent returns 1 if the event was logged, 0 if the contract logged too
// many events and -1 if the event is too large.
func logEvent(_ context.Context, x *execution, m api.Module, stack []uint64) {
	ptr, length := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
	switch {
	case length > maxEventSize:
		stack[0] = api.EncodeI32(-1)
	case x.numEvents >= maxEvents:
		stack[0] = api.EncodeI32(0)
	default:
		x.logs = append(x.logs, read(x, m, ptr, length))
		x.numEvents++
		stack[0] = api.EncodeI32(1)
	}
}

// writeOutput writes to the return value at offset, growing it as needed.
// It returns the number of bytes written, or -1 if offset is past the end
// or the return value would be too large.
func writeOutput(_ context.Context, x *execution, m api.Module, stack []uint64) {
	ptr, length, offset := api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	end := uint64(offset) + uint64(length)
	if uint64(offset) > uint64(len(x.output)) || end > maxOutput {
		stack[0] = api.EncodeI32(-1)
		return
	}
	data := read(x, m, ptr, length)
	if end > uint64(len(x.output)) {
		x.output = append(x.output, make([]byte, end-uint64(len(x.output)))...)
	}
	copy(x.output[offset:], data)
	stack[0] = api.EncodeI32(int32(length))
}

func stateKey(x *execution, m api.Module, stack []uint64) []byte {
	return read(x, m, api.DecodeU32(stack[0]), api.DecodeU32(stack[1]))
}

func stateSize(_ context.Context, x *execution, m api.Module, stack []uint64) {
	value, ok := x.state.Lookup(stateKey(x, m, stack))
	if !ok {
		stack[0] = api.EncodeI32(-1)
		return
	}
	stack[0] = api.EncodeI32(int32(len(value)))
}

func stateRead(_ context.Context, x *execution, m api.Module, stack []uint64) {
	value, ok := x.state.Lookup(stateKey(x, m, stack))
	if !ok {
		stack[0] = api.EncodeI32(-1)
		return
	}
	ptr, length, offset := api.DecodeU32(stack[2]), api.DecodeU32(stack[3]), api.DecodeU32(stack[4])
	stack[0] = api.EncodeI32(section(x, m, value, ptr, length, offset))
}

func stateWrite(_ context.Context, x *execution, m api.Module, stack []uint64) {
	key := stateKey(x, m, stack)
	value := read(x, m, api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if err := x.state.Put(key, value); err != nil {
		panic(trap(err.Error()))
	}
	stack[0] = api.EncodeI32(0)
}

// stateDelete returns 1 if the entry existed.
func stateDelete(_ context.Context, x *execution, m api.Module, stack []uint64) {
	if err := x.state.Del(stateKey(x, m, stack)); err != nil {
		stack[0] = api.EncodeI32(0)
		return
	}
	stack[0] = api.EncodeI32(1)
}

func stateDeletePrefix(_ context.Context, x *execution, m api.Module, stack []uint64) {
	stack[0] = api.EncodeI32(int32(x.state.DeletePrefix(stateKey(x, m, stack))))
}

func getInitOrigin(_ context.Context, x *execution, m api.Module, stack []uint64) {
	if x.kind != initEntry {
		panic(trap("get_init_origin is only available to init functions"))
	}
	write(x, m, api.DecodeU32(stack[0]), x.origin[:])
}

func getReceiveInvoker(_ context.Context, x *execution, m api.Module, stack []uint64) {
	x.requireReceive("get_receive_invoker")
	write(x, m, api.DecodeU32(stack[0]), x.receive.Invoker[:])
}

func getReceiveSelfAddress(_ context.Context, x *execution, m api.Module, stack []uint64) {
	x.requireReceive("get_receive_self_address")
	write(x, m, api.DecodeU32(stack[0]), x.receive.SelfAddress.Bytes())
}

func getReceiveSelfBalance(_ context.Context, x *execution, _ api.Module, stack []uint64) {
	x.requireReceive("get_receive_self_balance")
	stack[0] = uint64(x.receive.SelfBalance)
}

// getReceiveSender writes the tagged sender address and returns its length.
func getReceiveSender(_ context.Context, x *execution, m api.Module, stack []uint64) {
	x.requireReceive("get_receive_sender")
	b := x.receive.Sender.Bytes()
	write(x, m, api.DecodeU32(stack[0]), b)
	stack[0] = api.EncodeI32(int32(len(b)))
}

func getReceiveOwner(_ context.Context, x *execution, m api.Module, stack []uint64) {
	x.requireReceive("get_receive_owner")
	write(x, m, api.DecodeU32(stack[0]), x.receive.Owner[:])
}

func getReceiveEntrypointSize(_ context.Context, x *execution, _ api.Module, stack []uint64) {
	x.requireReceive("get_receive_entrypoint_size")
	stack[0] = api.EncodeI32(int32(len(x.entrypoint)))
}

func getReceiveEntrypoint(_ context.Context, x *execution, m api.Module, stack []uint64) {
	x.requireReceive("get_receive_entrypoint")
	write(x, m, api.DecodeU32(stack[0]), []byte(x.entrypoint))
}

func invoke(ctx context.Context, x *execution, m api.Module, stack []uint64) {
	x.requireReceive("invoke")
	payload := read(x, m, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	req, err := decodeRequest(api.DecodeU32(stack[0]), payload)
	if err != nil {
		panic(trap(err.Error()))
	}
	stack[0] = api.EncodeI64(x.encodeResponse(x.interrupt(ctx, req)))
}

func upgrade(ctx context.Context, x *execution, m api.Module, stack []uint64) {
	x.requireReceive("upgrade")
	var ref types.ModuleReference
	copy(ref[:], read(x, m, api.DecodeU32(stack[0]), uint32(len(ref))))
	stack[0] = api.EncodeI64(x.encodeResponse(x.interrupt(ctx, contract.Upgrade{Module: ref})))
}

package impl_test

import (
	"bytes"
)

// A minimal Wasm binary assembler for tests.

const (
	tI32 byte = 0x7f
	tI64 byte = 0x7e
)

type wasmImport struct {
	module, name string
	typ          int
}

type wasmFunc struct {
	export string
	typ    int
	locals []byte
	body   []byte
}

type wasmData struct {
	offset uint32
	bytes  []byte
}

type wasmBuilder struct {
	types   [][]byte
	imports []wasmImport
	funcs   []wasmFunc
	pages   uint32
	data    []wasmData
}

// newModule returns a builder for a module with one page of memory.
func newModule() *wasmBuilder {
	return &wasmBuilder{pages: 1}
}

func (b *wasmBuilder) typeIndex(params, results []byte) int {
	enc := append([]byte{0x60}, vec(params)...)
	enc = append(enc, vec(results)...)
	for i, t := range b.types {
		if bytes.Equal(t, enc) {
			return i
		}
	}
	b.types = append(b.types, enc)
	return len(b.types) - 1
}

// importFunc adds an import and returns its function index. Imports must be
// added before functions.
func (b *wasmBuilder) importFunc(module, name string, params, results []byte) uint32 {
	b.imports = append(b.imports, wasmImport{module: module, name: name, typ: b.typeIndex(params, results)})
	return uint32(len(b.imports) - 1)
}

// host imports a host function.
func (b *wasmBuilder) host(name string, params, results []byte) uint32 {
	return b.importFunc("concordium", name, params, results)
}

func (b *wasmBuilder) function(export string, params, results, locals []byte, body ...[]byte) {
	b.funcs = append(b.funcs, wasmFunc{
		export: export,
		typ:    b.typeIndex(params, results),
		locals: locals,
		body:   cat(body...),
	})
}

// entry adds an entrypoint of type (i64) -> i32 with i32 locals.
func (b *wasmBuilder) entry(export string, locals int, body ...[]byte) {
	var l []byte
	for i := 0; i < locals; i++ {
		l = append(l, tI32)
	}
	b.function(export, []byte{tI64}, []byte{tI32}, l, body...)
}

func (b *wasmBuilder) dataAt(offset uint32, data []byte) {
	b.data = append(b.data, wasmData{offset: offset, bytes: data})
}

func (b *wasmBuilder) bytes() []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

	var types []byte
	types = append(types, uleb(uint64(len(b.types)))...)
	for _, t := range b.types {
		types = append(types, t...)
	}
	out = append(out, section(1, types)...)

	if len(b.imports) > 0 {
		imports := uleb(uint64(len(b.imports)))
		for _, imp := range b.imports {
			imports = append(imports, name(imp.module)...)
			imports = append(imports, name(imp.name)...)
			imports = append(imports, 0x00)
			imports = append(imports, uleb(uint64(imp.typ))...)
		}
		out = append(out, section(2, imports)...)
	}

	funcs := uleb(uint64(len(b.funcs)))
	for _, f := range b.funcs {
		funcs = append(funcs, uleb(uint64(f.typ))...)
	}
	out = append(out, section(3, funcs)...)

	if b.pages > 0 {
		out = append(out, section(5, cat([]byte{0x01, 0x00}, uleb(uint64(b.pages))))...)
	}

	var exports []byte
	count := 0
	for i, f := range b.funcs {
		if f.export == "" {
			continue
		}
		exports = append(exports, name(f.export)...)
		exports = append(exports, 0x00)
		exports = append(exports, uleb(uint64(len(b.imports)+i))...)
		count++
	}
	if b.pages > 0 {
		exports = append(exports, name("memory")...)
		exports = append(exports, 0x02, 0x00)
		count++
	}
	out = append(out, section(7, cat(uleb(uint64(count)), exports))...)

	code := uleb(uint64(len(b.funcs)))
	for _, f := range b.funcs {
		var fn []byte
		if len(f.locals) == 0 {
			fn = []byte{0x00}
		} else {
			fn = uleb(uint64(len(f.locals)))
			for _, l := range f.locals {
				fn = append(fn, 0x01, l)
			}
		}
		fn = append(fn, f.body...)
		fn = append(fn, 0x0b)
		code = append(code, vec(fn)...)
	}
	out = append(out, section(10, code)...)

	if len(b.data) > 0 {
		data := uleb(uint64(len(b.data)))
		for _, d := range b.data {
			data = append(data, 0x00)
			data = append(data, i32c(int32(d.offset))...)
			data = append(data, 0x0b)
			data = append(data, vec(d.bytes)...)
		}
		out = append(out, section(11, data)...)
	}
	return out
}

func section(id byte, content []byte) []byte {
	return cat([]byte{id}, vec(content))
}

func vec(b []byte) []byte {
	return cat(uleb(uint64(len(b))), b)
}

func name(s string) []byte {
	return vec([]byte(s))
}

func cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// Instructions.

func i32c(v int32) []byte { return cat([]byte{0x41}, sleb(int64(v))) }
func i64c(v int64) []byte { return cat([]byte{0x42}, sleb(v)) }
func call(f uint32) []byte { return cat([]byte{0x10}, uleb(uint64(f))) }
func localGet(i uint32) []byte { return cat([]byte{0x20}, uleb(uint64(i))) }
func localSet(i uint32) []byte { return cat([]byte{0x21}, uleb(uint64(i))) }

var (
	unreachable = []byte{0x00}
	drop        = []byte{0x1a}
	end         = []byte{0x0b}
	loop        = []byte{0x03, 0x40}
	br0         = []byte{0x0c, 0x00}
	i32Sub      = []byte{0x6b}
	i64Add      = []byte{0x7c}
	i64Load     = []byte{0x29, 0x03, 0x00}
	i64Store    = []byte{0x37, 0x03, 0x00}
	i32Load8U   = []byte{0x2d, 0x00, 0x00}
)

// Package shaders describes the resolve kernels in a device-independent
// way: binding layouts, workgroup shapes, and the WGSL sources. Engines
// consume these descriptions to build their pipelines; the CPU engine
// pairs them with the kernels in the cpu subpackage.
package shaders

import (
	_ "embed"
)

type BindType int

const (
	// Buffer is a read-write storage buffer.
	Buffer BindType = iota + 1
	// BufReadOnly is a read-only storage buffer.
	BufReadOnly
	// Uniform is a uniform buffer.
	Uniform
)

type ComputeShader struct {
	Name string
	// WorkgroupSize is the size of one workgroup, matching the
	// @workgroup_size attribute in the WGSL source.
	WorkgroupSize [3]uint32
	Bindings      []BindType
	WGSL          []byte
}

//go:embed clear_empty_tiles.wgsl
var clearEmptyTilesWGSL []byte

//go:embed deferred_msaa_resolve.wgsl
var deferredMSAAResolveWGSL []byte

// Collection lists all kernels, in the order engines register them.
var Collection = struct {
	ClearEmptyTiles     ComputeShader
	DeferredMSAAResolve ComputeShader
}{
	ClearEmptyTiles: ComputeShader{
		Name:          "clear_empty_tiles",
		WorkgroupSize: [3]uint32{16, 16, 1},
		Bindings:      []BindType{Uniform, BufReadOnly, Buffer},
		WGSL:          clearEmptyTilesWGSL,
	},
	DeferredMSAAResolve: ComputeShader{
		Name:          "deferred_msaa_resolve",
		WorkgroupSize: [3]uint32{16, 16, 1},
		Bindings:      []BindType{Uniform, BufReadOnly, BufReadOnly, BufReadOnly, BufReadOnly, Buffer},
		WGSL:          deferredMSAAResolveWGSL,
	},
}

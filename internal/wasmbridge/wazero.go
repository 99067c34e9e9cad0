package wasmbridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// hostModuleName is the module the guest imports its environment from.
const hostModuleName = "env"

// wazeroGuest hosts the resolver module in a wazero runtime.
type wazeroGuest struct {
	runtime wazero.Runtime
	module  api.Module
	exports map[string]api.Function
}

// NewWazeroGuest compiles and instantiates a resolver module.
//
// Instantiation is two-phase: plain instantiation is attempted first because
// some module builds need no imports; only on failure is the host import set
// (thread id and host time) constructed and instantiation retried. A module
// missing any required export is a construction failure, never a silent
// degrade.
func NewWazeroGuest(ctx context.Context, wasm []byte) (Guest, error) {
	runtime := wazero.NewRuntime(ctx)

	compiled, err := runtime.CompileModule(ctx, wasm)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("wasmbridge: compile module: %w", err)
	}

	config := wazero.NewModuleConfig().WithName("resolver")
	module, err := runtime.InstantiateModule(ctx, compiled, config)
	if err != nil {
		if hostErr := instantiateHostModule(ctx, runtime); hostErr != nil {
			_ = runtime.Close(ctx)
			return nil, errors.Join(err, hostErr)
		}
		module, err = runtime.InstantiateModule(ctx, compiled, config)
		if err != nil {
			_ = runtime.Close(ctx)
			return nil, fmt.Errorf("wasmbridge: instantiate module: %w", err)
		}
	}

	guest := &wazeroGuest{
		runtime: runtime,
		module:  module,
		exports: make(map[string]api.Function),
	}
	for _, name := range []string{exportAlloc, exportFree, exportResolve, exportSetState} {
		fn := module.ExportedFunction(name)
		if fn == nil {
			_ = runtime.Close(ctx)
			return nil, fmt.Errorf("wasmbridge: module does not export %q", name)
		}
		guest.exports[name] = fn
	}
	if module.Memory() == nil {
		_ = runtime.Close(ctx)
		return nil, errors.New("wasmbridge: module does not export linear memory")
	}
	return guest, nil
}

// instantiateHostModule supplies the imports resolver builds expect: a
// niladic logical-thread-id function and a host-time function taking a
// pointer argument and returning the raw timestamp in milliseconds.
func instantiateHostModule(ctx context.Context, runtime wazero.Runtime) error {
	_, err := runtime.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context) int32 {
			// The host serializes all guest calls, so one logical thread.
			return 1
		}).
		Export("current_thread_id").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, ptr int32) int64 {
			return time.Now().UnixMilli()
		}).
		Export("current_time").
		Instantiate(ctx)
	if err != nil {
		return fmt.Errorf("wasmbridge: instantiate host module: %w", err)
	}
	return nil
}

func (g *wazeroGuest) Alloc(ctx context.Context, size uint32) (uint32, error) {
	return g.call1(ctx, exportAlloc, uint64(size))
}

func (g *wazeroGuest) Free(ctx context.Context, ptr uint32) error {
	_, err := g.exports[exportFree].Call(ctx, uint64(ptr))
	return err
}

func (g *wazeroGuest) Invoke(ctx context.Context, export string, ptr uint32) (uint32, error) {
	fn, ok := g.exports[export]
	if !ok {
		return 0, fmt.Errorf("wasmbridge: unknown export %q", export)
	}
	results, err := fn.Call(ctx, uint64(ptr))
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("wasmbridge: export %q returned %d results", export, len(results))
	}
	return uint32(results[0]), nil
}

func (g *wazeroGuest) ReadMemory(ptr, size uint32) ([]byte, error) {
	data, ok := g.module.Memory().Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("wasmbridge: read of %d bytes at %d is out of memory bounds", size, ptr)
	}
	// Copy out: the backing slice aliases guest memory which the next call
	// may reuse.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (g *wazeroGuest) WriteMemory(ptr uint32, data []byte) error {
	if !g.module.Memory().Write(ptr, data) {
		return fmt.Errorf("wasmbridge: write of %d bytes at %d is out of memory bounds", len(data), ptr)
	}
	return nil
}

func (g *wazeroGuest) Close(ctx context.Context) error {
	return g.runtime.Close(ctx)
}

func (g *wazeroGuest) call1(ctx context.Context, export string, arg uint64) (uint32, error) {
	results, err := g.exports[export].Call(ctx, arg)
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("wasmbridge: export %q returned %d results", export, len(results))
	}
	return uint32(results[0]), nil
}

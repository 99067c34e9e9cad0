package wasmbridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Guest export names the bridge invokes.
const (
	exportAlloc    = "alloc"
	exportFree     = "free"
	exportResolve  = "resolve"
	exportSetState = "set_resolver_state"
)

// lengthPrefixSize is the size of the little-endian length word stored
// immediately before the payload a guest export returns. The export contract
// is: the returned pointer addresses the payload start and the length word
// lives at pointer-4. No null-terminated fallback is supported.
const lengthPrefixSize = 4

// ErrBridgeClosed is returned for calls made after Close.
var ErrBridgeClosed = errors.New("wasmbridge: already disposed")

// Guest abstracts the instantiated WASM module: allocation, export
// invocation and linear memory access. The production implementation wraps a
// wazero module; tests substitute an in-process double.
type Guest interface {
	Alloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, ptr uint32) error
	Invoke(ctx context.Context, export string, ptr uint32) (uint32, error)
	ReadMemory(ptr, size uint32) ([]byte, error)
	WriteMemory(ptr uint32, data []byte) error
	Close(ctx context.Context) error
}

// Bridge runs the memory-transfer protocol against one guest instance.
//
// Guest linear memory is shared mutable state with no isolation between
// concurrent calls, so every invocation is serialized under the mutex.
type Bridge struct {
	mu     sync.Mutex
	guest  Guest
	log    *slog.Logger
	closed bool
}

// New wires a bridge to an instantiated guest.
func New(guest Guest, log *slog.Logger) *Bridge {
	return &Bridge{
		guest: guest,
		log:   log.With(slog.String("worker", "wasm")),
	}
}

// Resolve sends a resolve payload through the guest and returns the domain
// response payload.
func (b *Bridge) Resolve(ctx context.Context, payload []byte) ([]byte, error) {
	return b.transfer(ctx, exportResolve, payload)
}

// SetResolverState installs a validated resolver state blob into the guest.
func (b *Bridge) SetResolverState(ctx context.Context, state []byte) ([]byte, error) {
	return b.transfer(ctx, exportSetState, state)
}

// Close releases the guest instance. Further calls fail with ErrBridgeClosed.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.guest.Close(ctx)
}

// transfer runs one round of the memory-transfer protocol: wrap the payload
// in a request envelope, copy it into guest memory, invoke the export, read
// the length-prefixed response record and unwrap the response envelope.
func (b *Bridge) transfer(ctx context.Context, export string, payload []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBridgeClosed
	}

	envelope := EncodeRequest(payload)

	inPtr, err := b.guest.Alloc(ctx, uint32(len(envelope)))
	if err != nil {
		// Allocation failure means the protocol cannot proceed at all.
		return nil, fmt.Errorf("wasmbridge: alloc %d bytes: %w", len(envelope), err)
	}

	outPtr, invokeErr := func() (uint32, error) {
		// The input buffer is released on every exit path, including a
		// failed invoke.
		defer func() {
			if err := b.guest.Free(ctx, inPtr); err != nil {
				b.log.Warn("failed to free guest input buffer", "error", err)
			}
		}()
		if err := b.guest.WriteMemory(inPtr, envelope); err != nil {
			return 0, fmt.Errorf("wasmbridge: write request: %w", err)
		}
		return b.guest.Invoke(ctx, export, inPtr)
	}()
	if invokeErr != nil {
		return nil, fmt.Errorf("wasmbridge: invoke %s: %w", export, invokeErr)
	}

	record, err := b.readResultRecord(outPtr)
	if freeErr := b.guest.Free(ctx, outPtr); freeErr != nil {
		b.log.Warn("failed to free guest result buffer", "error", freeErr)
	}
	if err != nil {
		return nil, err
	}

	return DecodeResponse(record)
}

// readResultRecord reads the length-prefixed record a guest export returned:
// resultPtr addresses the payload start, the 4-byte little-endian length is
// at resultPtr-4.
func (b *Bridge) readResultRecord(resultPtr uint32) ([]byte, error) {
	if resultPtr < lengthPrefixSize {
		return nil, fmt.Errorf("%w: result pointer %d leaves no room for length prefix", ErrMalformedEnvelope, resultPtr)
	}
	prefix, err := b.guest.ReadMemory(resultPtr-lengthPrefixSize, lengthPrefixSize)
	if err != nil {
		return nil, fmt.Errorf("wasmbridge: read length prefix: %w", err)
	}
	length := binary.LittleEndian.Uint32(prefix)
	record, err := b.guest.ReadMemory(resultPtr, length)
	if err != nil {
		return nil, fmt.Errorf("wasmbridge: read %d-byte result: %w", length, err)
	}
	return record, nil
}

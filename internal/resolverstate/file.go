package resolverstate

import (
	"context"
	"fmt"
	"os"
)

// FileFetcher reads the resolver state from a local file, for offline use of
// the local resolver. The blob still goes through validation and install.
type FileFetcher struct {
	Path string
}

func (f FileFetcher) FetchState(ctx context.Context) ([]byte, error) {
	state, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("resolverstate: read state file: %w", err)
	}
	if len(state) == 0 {
		return nil, ErrNoState
	}
	return state, nil
}

package dataset

import (
	"fmt"
	"sync"
)

var (
	sharedMu   sync.Mutex
	sharedGrid *Grid
)

// Shared returns the process-wide grid, opening path on first use. Later
// calls return the same grid regardless of path until CloseShared runs.
func Shared(path string) (*Grid, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedGrid != nil {
		return sharedGrid, nil
	}
	g, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("load shared dataset: %w", err)
	}
	sharedGrid = g
	return sharedGrid, nil
}

// CloseShared releases the shared grid. The next Shared call reopens.
func CloseShared() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if sharedGrid == nil {
		return nil
	}
	err := sharedGrid.Close()
	sharedGrid = nil
	return err
}

// Package runtime holds the process-wide dependency-injection container.
package runtime

import (
	"sync"

	"go.uber.org/dig"
)

var (
	container     *dig.Container
	containerOnce sync.Once
	containerMu   sync.RWMutex
)

// GetContainer returns the process-wide dig container, creating it on first use.
func GetContainer() *dig.Container {
	containerOnce.Do(func() {
		containerMu.Lock()
		container = dig.New()
		containerMu.Unlock()
	})
	containerMu.RLock()
	defer containerMu.RUnlock()
	return container
}

// SetContainer replaces the process-wide container, used by tests that need
// an isolated graph of fakes instead of the real wiring built at startup.
func SetContainer(c *dig.Container) {
	containerMu.Lock()
	defer containerMu.Unlock()
	container = c
}

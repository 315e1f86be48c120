package can

import (
	"fmt"
	"sort"
	"sync"
)

type NewTransportFunc func(channel string) (Transport, error)

var (
	registryMu        sync.RWMutex
	transportRegistry = make(map[string]NewTransportFunc)
)

// Register a new CAN transport type
// This should be called inside an init() function of plugin
func RegisterTransport(kind string, newTransport NewTransportFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	transportRegistry[kind] = newTransport
}

// Create a new transport of the given kind e.g. "socketcan", "virtual"
// The package implementing it must be imported for it to be available
func NewTransport(kind string, channel string) (Transport, error) {
	registryMu.RLock()
	createTransport, ok := transportRegistry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported interface : %v", kind)
	}
	return createTransport(channel)
}

// Names of all registered transports
func Transports() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(transportRegistry))
	for kind := range transportRegistry {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

package driver

import "sync"

var (
	frontendMu sync.RWMutex
	frontend   Frontend
)

// RegisterFrontend installs the language frontend the CLI uses. Frontends
// register themselves from an init function; the last registration wins.
func RegisterFrontend(fe Frontend) {
	frontendMu.Lock()
	defer frontendMu.Unlock()
	frontend = fe
}

// RegisteredFrontend returns the installed frontend, if any.
func RegisteredFrontend() (Frontend, bool) {
	frontendMu.RLock()
	defer frontendMu.RUnlock()
	return frontend, frontend != nil
}

package engine

// Handle owns the process-wide engine instance. It is created once by the
// application's root composition and passed by reference into the Client
// constructor; tests construct a fresh Handle around a fake or local
// boundary instead of sharing global state.
//
// Lifecycle: initialized lazily on first authenticated use, lives for the
// process lifetime, never explicitly destroyed. The surrounding application
// runs a single-threaded event loop, so Handle does no locking of its own.
type Handle struct {
	boundary Boundary
	path     string
}

// NewHandle wraps a boundary implementation. The handle starts
// uninitialized; call Init before issuing engine calls.
func NewHandle(b Boundary) *Handle {
	return &Handle{boundary: b}
}

// Init points the engine at the given storage location. Re-initializing
// with the same path is a no-op success; a different path replaces the
// previous storage. Reports success.
func (h *Handle) Init(path string) bool {
	if path != "" && h.path == path {
		return true
	}
	if !h.boundary.Init(path) {
		return false
	}
	h.path = path
	return true
}

// IsInitialized reports whether Init has succeeded.
func (h *Handle) IsInitialized() bool {
	return h.path != ""
}

// Path returns the storage location passed to the last successful Init.
func (h *Handle) Path() string {
	return h.path
}

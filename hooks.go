package cachepool

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The pool calls them on hot paths.
type Hooks interface {
	// An entry was found expired on read and deleted.
	ExpiredOnRead(storageKey string)

	// A stored entry could not be decoded (corrupt envelope or codec failure)
	// and was deleted.
	DecodeFailed(storageKey string, err error)

	// The store failed or rejected a write/delete/clear.
	// op ∈ {"set", "delete", "clear"}; storageKey is empty for "clear".
	StoreFailed(op, storageKey string, err error)

	// A deferred queue flush finished. failed is the number of entries
	// that could not be persisted.
	CommitFinished(total, failed int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ExpiredOnRead(string)              {}
func (NopHooks) DecodeFailed(string, error)        {}
func (NopHooks) StoreFailed(string, string, error) {}
func (NopHooks) CommitFinished(int, int)           {}

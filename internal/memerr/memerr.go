// Package memerr defines the closed set of error kinds that cross package
// boundaries in memoraid. Callers use errors.Is against the sentinel
// values; wrapped context is added with fmt.Errorf("...: %w", err) at each
// layer, following the rest of the module.
package memerr

import "errors"

// Sentinel error kinds. Every error that should change caller behavior
// (HTTP status, retry, fallback) is one of these, or wraps one of these.
var (
	// ErrUnknownSession is returned when an operation names a session_id
	// that is not active (never existed, already ended, or evicted).
	ErrUnknownSession = errors.New("unknown session")

	// ErrConfig marks a configuration problem discovered at startup.
	// It is fatal: the service must refuse to serve.
	ErrConfig = errors.New("configuration error")

	// ErrStorage marks a persistence failure. The operation's transaction,
	// if any, has already been rolled back by the time this is returned.
	ErrStorage = errors.New("storage error")

	// ErrTransientLLM marks a retryable failure talking to an LLM
	// provider (transport error or 5xx). Callers that exhaust retries
	// should fall back rather than fail the caller outright.
	ErrTransientLLM = errors.New("transient llm error")

	// ErrSchema marks an LLM response that did not conform to the
	// requested schema. Treated like ErrTransientLLM but never retried —
	// the same malformed prompt would just fail again.
	ErrSchema = errors.New("llm schema error")

	// ErrCancelled marks an operation aborted by context cancellation.
	// It is propagated unchanged, never wrapped in another kind.
	ErrCancelled = errors.New("cancelled")
)

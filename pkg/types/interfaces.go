package types

import "context"

// ContextInfo is opaque, source-adapter-defined metadata attached to a
// source registration or a single batch (e.g. a container id, a file
// offset range). The core never inspects it.
type ContextInfo map[string]string

// Source is the inbound contract a source adapter drives (spec.md
// §6). Wire parsing lives entirely in the adapter; the adapter only
// ever calls these methods on the listener it was constructed with.
type Source interface {
	// Start begins the adapter's read loop and should block until ctx
	// is cancelled, following the same Start(ctx)-blocks-until-
	// cancelled contract as the teacher's Monitor interface.
	Start(ctx context.Context) error
	Stop() error
}

// IngestTarget is the fan-out contract the listener drives against the
// fixed, ordered target list (summary index, zone indices, event-name
// indices) on every batch. Each concrete index type implements this.
type IngestTarget interface {
	BeginInserting()
	InsertEvent(e Event)
	EndInserting()
}

// Package protocol defines the synchronization events exchanged over the
// realtime channel and relayed between server processes.
//
// # Ordering
//
// Events for a single item are delivered to any given connection in the
// order the originating process emitted them (FIFO per source). There is
// no total order across items or across processes.
//
// # Live typing
//
// live-typing events are a best-effort preview stream of uncommitted
// keystrokes. They may be dropped for slow consumers and are always
// superseded by the next item-updated commit, which alone is
// authoritative. A client that is itself editing an item is expected to
// ignore incoming live-typing and item-updated events for that item until
// it leaves edit mode; the server does not enforce this.
//
// # Cross-process relay
//
// Every emitted event is wrapped in an Envelope and published to the
// shared relay topic. Peer processes re-emit received envelopes to their
// own local connections, skipping envelopes they originated themselves.
// Sender exclusion for all-except-sender events works by globally unique
// connection id, not by process.
package protocol

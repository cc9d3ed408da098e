// Package relay carries realtime events between server processes over
// Redis pub/sub.
//
// Every process publishes its emitted envelopes to one namespaced
// channel and subscribes to the same channel, skipping envelopes it
// originated. Delivery is at-least-once per Redis pub/sub semantics with
// no replay: a process that was disconnected simply misses events, which
// the protocol tolerates because committed state can always be refetched
// and the preview stream is lossy by contract.
package relay

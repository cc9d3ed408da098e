// Package hub fans realtime events out to this process's connected
// clients.
//
// Connections register under a globally unique id and receive events on
// a buffered channel. Sends never block: a connection that cannot keep
// up loses events rather than stalling the rest, which the protocol
// tolerates because committed state can be refetched and the preview
// stream is lossy by contract. The hub is transport-agnostic; the
// websocket layer owns the sockets and pumps.
package hub

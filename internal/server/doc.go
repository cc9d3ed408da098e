// Package server wires the corkboard components into one process: the
// authoritative board, the presence tracker, the local hub, the optional
// Redis relay, and the snapshot store.
//
// # HTTP API
//
//   - GET    /api/board      - full committed state {items, order}
//   - POST   /api/items      - create an item
//   - PATCH  /api/items/{id} - partial update
//   - DELETE /api/items/{id} - delete an item
//   - PUT    /api/order      - replace the display order
//   - GET    /ws             - realtime event channel (websocket)
//   - GET    /health         - liveness check
//   - GET    /health/ready   - readiness check (includes relay ping)
//
// Errors are returned as {"error": string} with 400 for validation and
// reorder failures, 404 for unknown ids.
//
// # Commit pipeline
//
// A mutation is committed once the board applied it. The handler then
// schedules an asynchronous snapshot save and broadcasts the event to
// local connections and, through a single ordered publisher, to the
// relay. The client response never waits for the disk or for Redis.
//
// # Realtime channel
//
// A connecting client receives a hello event with its connection id, the
// full board, and the current presence view, then the live stream.
// Client-originated events are edit-start, edit-stop, and live-typing.
// Connection teardown synchronously ends any presence the connection
// still held, emitting one editing-stopped per affected item.
package server

// Package server exposes agent runs over HTTP.
//
// POST /agent accepts a run request and streams run events back as
// Server-Sent Events. GET /ws carries the same request and event frames over
// a WebSocket, allowing several runs per connection. Runs of one thread are
// serialized through a commandqueue lane; a repeated run_id inside the dedup
// window replays the recorded events instead of calling the model again.
//
// /health reports liveness and lane statistics and /metrics serves the
// Prometheus registry.
package server

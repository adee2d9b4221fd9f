// Package api exposes the permission engine over HTTP: node CRUD,
// authoritative permission reads and mutations, per-user capability
// projection, and version eligibility checks.
//
// Error bodies are uniform JSON with stable reason codes so clients can
// branch without parsing messages. Permission reads reflect the graph
// store immediately; the search index trails behind through the sync
// queue and is never served from here.
package api

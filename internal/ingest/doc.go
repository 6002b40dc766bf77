// Package ingest keeps a single broker subscription alive and feeds every
// received message through the decode and persist pipeline.
//
// # Session states
//
//	          settings incomplete
//	          (wait poll interval)
//	              ┌────┐
//	              ▼    │
//	       ┌──────────────┐  complete   ┌────────────┐
//	  ────▶│ Disconnected │────────────▶│ Connecting │
//	       └──────────────┘             └────────────┘
//	          ▲        ▲   dial failed        │
//	          │        └──────────────────────┤ dial ok
//	          │ stream closed                 ▼
//	          │                        ┌────────────┐
//	          └────────────────────────│ Subscribed │◀─┐ one message
//	                                   └────────────┘──┘ at a time
//
// Transient network drops are absorbed by the transport's own reconnect
// logic, so the session stays Subscribed through them. Only a closed
// message stream sends it back to Disconnected.
//
// Run returns only when its context is cancelled. Decode and persist
// failures are logged and never leave the loop.
package ingest

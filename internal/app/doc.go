// Package app is the composition root of the counter backend.
//
// Responsibilities:
// - Build the read-only client, state reader, wallet loader and orchestrator from config.
// - Own their lifecycle: polling, wallet warm-up, delayed refresh timers.
// - Expose one Service to the RPC surface and the terminal UI.
//
// Non-responsibilities:
// - JSON-RPC/HTTP protocol handling and endpoint-level mapping.
// - Contract semantics; those live in reader and orchestrator.
package app

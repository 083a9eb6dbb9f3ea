// Package tool defines the contract boundary between a conversational agent and
// the backend servers that expose tools to it.
//
// The package is split by concern:
//   - server: server configuration, tool descriptors, jobs and health snapshots
//   - handler: the protocol handler contract and its variants (synchronous HTTP,
//     submit-and-poll, reserved protocols that fail closed)
//   - wire: response and discovery document decoding shared by handlers
//   - error: the structured error taxonomy surfaced to callers
//   - store: the configuration store contract and its SQL, file and memory backends
//
// Routing calls across servers and polling jobs to completion lives in the
// dispatch package; this package only knows how to talk to one server at a time.
package tool

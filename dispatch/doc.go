// Package dispatch unifies the tools of many backend servers under one
// namespace and routes calls to them.
//
// A Dispatcher loads active servers from a tool.ServerStore, asks each
// server's protocol handler to discover its tools, and publishes an
// immutable Registry snapshot. ExecuteTool looks the tool up, submits the
// call and, when the server answers with a job handle, polls the result
// endpoint until the job completes, fails, or the per-call deadline passes.
// Jobs abandoned on timeout are not cancelled upstream.
package dispatch

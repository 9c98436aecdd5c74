// Package tools hosts the tool registry and the integration meta-tool.
//
// The registry is a flat name-to-tool table with a per-call context
// factory. The meta-tool is the single integration entrypoint exposed to
// the LLM: discover returns the compact capability index, activate
// returns one integration's full operation schemas, execute routes an
// operation call to the integration. Per-operation tools registered by
// the lifecycle manager live alongside it for hosts that want direct
// invocation. The mount adapter bridges registered tools onto an MCP
// server.
package tools

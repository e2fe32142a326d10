// Package mcp exposes the CRM session as Model Context Protocol tools and
// consumes those tools from the agent side.
//
// The server is built on github.com/felixgeelhaar/mcp-go and served over
// HTTP. The client uses the streamable HTTP transport of
// github.com/mark3labs/mcp-go.
package mcp

// DefaultEndpointPath is where the HTTP transport accepts JSON-RPC requests.
const DefaultEndpointPath = "/mcp"

// Package sfmcp provides the version information for salesforce-mcp.
package sfmcp

// Version is the current version of salesforce-mcp.
const Version = "0.1.0"

// ServerName is the name advertised to MCP clients.
const ServerName = "Local Salesforce MCP"

// GetVersion returns the current version string.
func GetVersion() string {
	return Version
}

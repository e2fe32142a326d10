// Package process launches the tool server as a child process and tears it down.
//
// The child announces its listening address on stdout with a single line of
// the form "SFMCP_READY <host:port>". The supervisor waits for that line and
// then confirms the address accepts TCP connections.
package process

import (
	"strings"
)

// ReadyPrefix starts the readiness line printed by the tool server.
const ReadyPrefix = "SFMCP_READY"

// ReadyLine formats the readiness line for addr.
func ReadyLine(addr string) string {
	return ReadyPrefix + " " + addr
}

// ParseReadyLine extracts the address from a readiness line.
func ParseReadyLine(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 || fields[0] != ReadyPrefix {
		return "", false
	}
	return fields[1], true
}

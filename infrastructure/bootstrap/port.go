package bootstrap

import (
	"errors"
	"net"
	"strconv"

	"github.com/felixgeelhaar/salesforce-mcp/domain/crm"
	"github.com/felixgeelhaar/salesforce-mcp/infrastructure/logging"
)

// Default probing range.
const (
	DefaultHost           = "127.0.0.1"
	DefaultBasePort       = 8001
	DefaultPortCandidates = 5
)

// ProbePort returns the first port in [base, base+count) on host where a
// listener can be opened and closed again. The port is released before
// returning, so the caller must bind it promptly.
func ProbePort(host string, base, count int) (int, error) {
	if count <= 0 {
		count = DefaultPortCandidates
	}
	last := base + count - 1

	for port := base; port <= last; port++ {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			logging.Debug().
				Add(logging.Component("bootstrap")).
				Add(logging.Port(port)).
				Add(logging.ErrorField(err)).
				Msg("port unavailable")
			continue
		}
		if err := ln.Close(); err != nil {
			logging.Warn().
				Add(logging.Component("bootstrap")).
				Add(logging.Port(port)).
				Add(logging.ErrorField(err)).
				Msg("release probed port")
		}
		return port, nil
	}

	return 0, &crm.PortExhaustionError{Host: host, First: base, Last: last}
}

// IsPortExhausted reports whether err came from ProbePort running out of candidates.
func IsPortExhausted(err error) bool {
	var pe *crm.PortExhaustionError
	return errors.As(err, &pe)
}

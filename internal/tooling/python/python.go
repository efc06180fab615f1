// Package python implements the Python tool: it delegates run/eval
// actions to internal/pyexec.Broker over a loopback TCP socket, per
// spec.md §4.4.
package python

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pedrow21/proxima/internal/pyexec"
	"github.com/pedrow21/proxima/pkg/models"
)

// Tool implements tooling.Impl for Python. It carries no persistent
// state; every invocation is a fresh broker round trip.
type Tool struct {
	BrokerAddr string
	Dialer     net.Dialer
}

// New returns a Tool dialing a pyexec Broker at brokerAddr.
func New(brokerAddr string) *Tool {
	return &Tool{BrokerAddr: brokerAddr, Dialer: net.Dialer{Timeout: 5 * time.Second}}
}

func (t *Tool) Kind() models.ToolKind { return models.ToolPython }
func (t *Tool) Actions() []string     { return []string{"run", "eval"} }

func (t *Tool) Invoke(ctx context.Context, action, input string, _ models.ToolState) (string, models.ToolState, error) {
	verb := pyexec.VerbRun
	if action == "eval" {
		verb = pyexec.VerbEval
	}

	conn, err := t.Dialer.DialContext(ctx, "tcp", t.BrokerAddr)
	if err != nil {
		return "", nil, fmt.Errorf("python: dial broker: %w", err)
	}
	defer conn.Close()

	if err := pyexec.WriteRequest(conn, verb, input); err != nil {
		return "", nil, fmt.Errorf("python: send request: %w", err)
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return "", nil, fmt.Errorf("python: read response: %w", err)
	}
	// The stream ends with the protocol's 0xFF delimiter, which belongs to
	// neither stdout nor stderr.
	if n := len(raw); n > 0 && raw[n-1] == 0xFF {
		raw = raw[:n-1]
	}
	return pyexec.DemuxOutput(raw), nil, nil
}

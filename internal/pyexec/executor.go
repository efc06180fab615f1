package pyexec

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os/exec"
)

// ExecutorConfig configures a one-shot Executor invocation.
type ExecutorConfig struct {
	// ListenAddr is the in-container accept address, default ":4096".
	ListenAddr string
	// PythonBin names the interpreter binary, default "python3".
	PythonBin string
}

func (c *ExecutorConfig) setDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":4096"
	}
	if c.PythonBin == "" {
		c.PythonBin = "python3"
	}
}

// RunExecutor accepts exactly one connection, reads one length-delimited
// request, runs it through PythonBin, and streams the interpreter's
// stdout/stderr back as stdout_prox/stderr_prox frames terminated by the
// protocol delimiter. It returns once that single exchange completes.
func RunExecutor(cfg ExecutorConfig) error {
	cfg.setDefaults()
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("pyexec executor: listen: %w", err)
	}
	defer ln.Close()

	conn, err := ln.Accept()
	if err != nil {
		return fmt.Errorf("pyexec executor: accept: %w", err)
	}
	defer conn.Close()

	verb, payload, err := ReadRequest(conn)
	if err != nil {
		WriteStderrFrame(conn, err.Error())
		WriteTerminator(conn)
		return err
	}

	run(conn, cfg.PythonBin, verb, payload)
	return WriteTerminator(conn)
}

// run executes payload with pythonBin, forwarding captured stdout/stderr
// to conn as they are produced.
func run(conn net.Conn, pythonBin string, verb Verb, payload string) {
	var args []string
	switch verb {
	case VerbEval:
		args = []string{"-c", fmt.Sprintf("print(eval(%q))", payload)}
	default:
		args = []string{"-c", payload}
	}

	cmd := exec.Command(pythonBin, args...)
	cmd.Stdout = &prefixedWriter{dst: conn, writeFrame: WriteStdoutFrame}
	cmd.Stderr = &prefixedWriter{dst: conn, writeFrame: WriteStderrFrame}

	if err := cmd.Run(); err != nil {
		WriteStderrFrame(conn, err.Error())
	}
}

// prefixedWriter forwards every Write as its own framed
// stdout_prox/stderr_prox chunk, matching the executor's description in
// spec.md §4.4: "each write(text) from the interpreter is forwarded as a
// frame", frames not individually delimited.
type prefixedWriter struct {
	dst        io.Writer
	writeFrame func(w io.Writer, text string) error
}

func (p *prefixedWriter) Write(b []byte) (int, error) {
	if err := p.writeFrame(p.dst, string(bytes.Clone(b))); err != nil {
		return 0, err
	}
	return len(b), nil
}

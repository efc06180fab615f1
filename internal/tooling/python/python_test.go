package python

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/pedrow21/proxima/internal/pyexec"
)

// fakeBroker answers one connection with a canned stdout/stderr response,
// standing in for internal/pyexec.Broker so the Python tool's framing and
// demuxing can be tested without shelling out to docker or python3.
func fakeBroker(t *testing.T, ln net.Listener, stdout, stderr string) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	if _, _, err := pyexec.ReadRequest(conn); err != nil {
		t.Errorf("fakeBroker: ReadRequest: %v", err)
		return
	}
	if stdout != "" {
		pyexec.WriteStdoutFrame(conn, stdout)
	}
	if stderr != "" {
		pyexec.WriteStderrFrame(conn, stderr)
	}
	pyexec.WriteTerminator(conn)
}

func TestInvokeRunReturnsDemuxedOutput(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go fakeBroker(t, ln, "42\n", "")

	tool := New(ln.Addr().String())
	tool.Dialer.Timeout = time.Second

	out, data, err := tool.Invoke(context.Background(), "run", "print(42)", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if data != nil {
		t.Fatalf("Python tool must leave persistent data nil, got %v", data)
	}
	want := "stdout:\n42\n\nstderr:\n\n"
	if out != want {
		t.Fatalf("want %q, got %q", want, out)
	}
}

func TestInvokeEvalSendsEvalVerb(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	verbCh := make(chan pyexec.Verb, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		verb, _, _ := pyexec.ReadRequest(conn)
		verbCh <- verb
		pyexec.WriteTerminator(conn)
	}()

	tool := New(ln.Addr().String())
	tool.Dialer.Timeout = time.Second

	if _, _, err := tool.Invoke(context.Background(), "eval", "6*7", nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	select {
	case got := <-verbCh:
		if got != pyexec.VerbEval {
			t.Fatalf("want verb %q, got %q", pyexec.VerbEval, got)
		}
	case <-time.After(time.Second):
		t.Fatal("broker never received a request")
	}
}

func TestInvokeDialFailureIsError(t *testing.T) {
	tool := New("127.0.0.1:1")
	tool.Dialer.Timeout = 200 * time.Millisecond

	if _, _, err := tool.Invoke(context.Background(), "run", "print(1)", nil); err == nil {
		t.Fatal("expected a dial error against an unreachable broker")
	}
}

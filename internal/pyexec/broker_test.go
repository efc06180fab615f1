package pyexec

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeBrokerHarness tracks what the broker's launch/dial seams observed,
// so tests can assert the admission-control invariant (active <=
// max_in_flight, ports reused) without a container runtime.
type fakeBrokerHarness struct {
	concurrent int32
	maxSeen    int32
	launches   int32

	mu        sync.Mutex
	addrs     map[int]string
	portsSeen map[int]int
}

// fakeBroker wires b.launch/b.dial to an in-process fake executor instead
// of docker: each launch starts a one-shot listener that runs respond
// once, the way a real container serves exactly one exchange.
func fakeBroker(maxInFlight int, respond func(conn net.Conn)) (*Broker, *fakeBrokerHarness) {
	h := &fakeBrokerHarness{addrs: map[int]string{}, portsSeen: map[int]int{}}

	b := NewBroker(BrokerConfig{
		MaxInFlight:    maxInFlight,
		ConnectTimeout: time.Second,
		WallClock:      2 * time.Second,
	}, slog.Default())

	b.launch = func(ctx context.Context, port int) (func(), error) {
		atomic.AddInt32(&h.launches, 1)
		n := atomic.AddInt32(&h.concurrent, 1)
		for {
			old := atomic.LoadInt32(&h.maxSeen)
			if n <= old || atomic.CompareAndSwapInt32(&h.maxSeen, old, n) {
				break
			}
		}

		h.mu.Lock()
		h.portsSeen[port]++
		h.mu.Unlock()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			atomic.AddInt32(&h.concurrent, -1)
			return nil, err
		}
		h.mu.Lock()
		h.addrs[port] = ln.Addr().String()
		h.mu.Unlock()

		done := make(chan struct{})
		go func() {
			defer close(done)
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			respond(conn)
		}()

		return func() {
			ln.Close()
			<-done
			atomic.AddInt32(&h.concurrent, -1)
		}, nil
	}

	b.dial = func(ctx context.Context, dialer net.Dialer, port int) (net.Conn, error) {
		h.mu.Lock()
		addr := h.addrs[port]
		h.mu.Unlock()
		return dialer.DialContext(ctx, "tcp", addr)
	}

	return b, h
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

// dialAndRoundTrip dials addr, sends payload as a VerbRun request, and
// returns the demuxed response. It reports errors through the returned
// error rather than t.Fatalf, since it is also called from spawned
// goroutines where only the test goroutine itself may call Fatal.
func dialAndRoundTrip(addr, payload string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return "", fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if err := WriteRequest(conn, VerbRun, payload); err != nil {
		return "", fmt.Errorf("WriteRequest: %w", err)
	}
	raw, err := readAll(conn)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return DemuxOutput(raw[:len(raw)-1]), nil
}

func TestBrokerProxiesRequestResponse(t *testing.T) {
	respond := func(conn net.Conn) {
		if _, _, err := ReadRequest(conn); err != nil {
			return
		}
		WriteStdoutFrame(conn, "hello\n")
		WriteTerminator(conn)
	}
	b, _ := fakeBroker(2, respond)
	b.cfg.ListenAddr = freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx)
	time.Sleep(20 * time.Millisecond)

	got, err := dialAndRoundTrip(b.cfg.ListenAddr, "print('hello')")
	if err != nil {
		t.Fatalf("dialAndRoundTrip: %v", err)
	}
	want := "stdout:\nhello\n\nstderr:\n\n"
	if got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestBrokerWallClockExceededReportsError(t *testing.T) {
	respond := func(conn net.Conn) {
		if _, _, err := ReadRequest(conn); err != nil {
			return
		}
		time.Sleep(200 * time.Millisecond)
		WriteStdoutFrame(conn, "too late\n")
		WriteTerminator(conn)
	}
	b, _ := fakeBroker(1, respond)
	b.cfg.ListenAddr = freeAddr(t)
	b.cfg.WallClock = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx)
	time.Sleep(20 * time.Millisecond)

	got, err := dialAndRoundTrip(b.cfg.ListenAddr, "print('hi')")
	if err != nil {
		t.Fatalf("dialAndRoundTrip: %v", err)
	}
	if got == "stdout:\ntoo late\n\nstderr:\n\n" {
		t.Fatal("expected the wall clock to cut the exchange short")
	}
}

// TestBrokerAdmissionControlBoundsConcurrency drives more concurrent
// requests than max_in_flight through the full accept->admit->proxy path
// and asserts the admission-control invariant from spec.md §8 property 8:
// active containers never exceed max_in_flight, and the bounded port pool
// is fully reclaimed (and therefore reused) once every request completes.
func TestBrokerAdmissionControlBoundsConcurrency(t *testing.T) {
	const maxInFlight = 2
	const requests = 6

	respond := func(conn net.Conn) {
		if _, _, err := ReadRequest(conn); err != nil {
			return
		}
		time.Sleep(30 * time.Millisecond)
		WriteStdoutFrame(conn, "ok\n")
		WriteTerminator(conn)
	}
	b, h := fakeBroker(maxInFlight, respond)
	b.cfg.ListenAddr = freeAddr(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Serve(ctx)
	time.Sleep(20 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := dialAndRoundTrip(b.cfg.ListenAddr, "print('ok')")
			if err != nil {
				t.Errorf("dialAndRoundTrip: %v", err)
				return
			}
			if got != "stdout:\nok\n\nstderr:\n\n" {
				t.Errorf("unexpected response: %q", got)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&h.maxSeen); got > int32(maxInFlight) {
		t.Fatalf("admission control violated: %d concurrent containers exceeds max_in_flight %d", got, maxInFlight)
	}
	if got := atomic.LoadInt32(&h.concurrent); got != 0 {
		t.Fatalf("want every container released once all requests finish, got %d still active", got)
	}
	if n := len(b.ports.available); n != maxInFlight {
		t.Fatalf("want all %d ports back in the pool, got %d available", maxInFlight, n)
	}

	h.mu.Lock()
	distinctPorts := len(h.portsSeen)
	h.mu.Unlock()
	if atomic.LoadInt32(&h.launches) <= int32(distinctPorts) {
		t.Fatalf("want more launches (%d) than distinct ports (%d) to demonstrate reuse", h.launches, distinctPorts)
	}
}

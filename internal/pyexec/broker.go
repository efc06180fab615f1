package pyexec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"
)

// BrokerConfig configures a Broker.
type BrokerConfig struct {
	// ListenAddr is the broker's own accept address, default ":4096".
	ListenAddr string
	// StartPort is the first port in the reserved executor-container pool.
	StartPort int
	// MaxInFlight bounds simultaneous executions and sizes the port pool.
	MaxInFlight int
	// ContainerImage is the docker image running the one-shot executor.
	ContainerImage string
	ConnectTimeout time.Duration
	WallClock      time.Duration
}

func (c *BrokerConfig) setDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":4096"
	}
	if c.StartPort == 0 {
		c.StartPort = 18000
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 4
	}
	if c.ContainerImage == "" {
		c.ContainerImage = "proxima-pyexecutor:latest"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.WallClock <= 0 {
		c.WallClock = 15 * time.Second
	}
}

// launchContainer starts the one-shot executor bound to port and returns a
// cleanup func to run once the exchange is over. The default implementation
// shells out to docker; tests substitute an in-process fake.
type launchContainer func(ctx context.Context, port int) (cleanup func(), err error)

// dialContainer dials the executor bound to port. The default
// implementation retries until ctx's deadline; tests substitute a direct
// dial against an in-process fake.
type dialContainerFunc func(ctx context.Context, dialer net.Dialer, port int) (net.Conn, error)

// Broker accepts code-execution client connections, admits them against
// a bounded pool of reserved ports plus a max-in-flight semaphore, and
// proxies bytes to/from a containerized one-shot Executor per request.
type Broker struct {
	cfg BrokerConfig
	log *slog.Logger

	sem   *semaphore.Weighted
	ports *portPool

	launch launchContainer
	dial   dialContainerFunc
}

// NewBroker returns a Broker ready to Serve.
func NewBroker(cfg BrokerConfig, log *slog.Logger) *Broker {
	cfg.setDefaults()
	b := &Broker{
		cfg:   cfg,
		log:   log,
		sem:   semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		ports: newPortPool(cfg.StartPort, cfg.MaxInFlight),
	}
	b.launch = b.launchDockerContainer
	b.dial = dialContainer
	return b
}

// Serve listens on cfg.ListenAddr and dispatches one worker goroutine per
// accepted connection, blocking on admission control inside that
// goroutine so a slow/full broker never drops an accepted connection.
func (b *Broker) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("pyexec: listen: %w", err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("pyexec: accept: %w", err)
		}
		go b.handle(ctx, conn)
	}
}

func (b *Broker) handle(ctx context.Context, client net.Conn) {
	defer client.Close()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer b.sem.Release(1)

	port, err := b.ports.acquire(ctx)
	if err != nil {
		writeBrokerError(client, fmt.Errorf("pyexec: no port available: %w", err))
		return
	}
	defer b.ports.release(port)

	b.runOne(ctx, client, port)
}

func (b *Broker) runOne(ctx context.Context, client net.Conn, port int) {
	deadline := time.Now().Add(b.cfg.WallClock)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	cleanup, err := b.launch(runCtx, port)
	if err != nil {
		writeBrokerError(client, fmt.Errorf("pyexec: launch container: %w", err))
		return
	}
	defer cleanup()

	dialer := net.Dialer{Timeout: b.cfg.ConnectTimeout}
	conn, err := b.dial(runCtx, dialer, port)
	if err != nil {
		writeBrokerError(client, fmt.Errorf("pyexec: dial container: %w", err))
		return
	}
	defer conn.Close()

	verb, payload, err := ReadRequest(client)
	if err != nil {
		writeBrokerError(client, fmt.Errorf("pyexec: read request: %w", err))
		return
	}
	if err := WriteRequest(conn, verb, payload); err != nil {
		writeBrokerError(client, fmt.Errorf("pyexec: forward request: %w", err))
		return
	}

	proxyDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(client, conn)
		proxyDone <- err
	}()

	select {
	case <-proxyDone:
	case <-runCtx.Done():
		b.log.Warn("pyexec: execution wall clock exceeded", "port", port)
		writeBrokerError(client, fmt.Errorf("pyexec: execution exceeded %s", b.cfg.WallClock))
	}
}

// launchDockerContainer is the default launchContainer: it runs the
// executor image via docker, returning a cleanup func that force-removes
// the container and reaps the docker client process.
func (b *Broker) launchDockerContainer(ctx context.Context, port int) (func(), error) {
	containerName := fmt.Sprintf("proxima-pyexec-%d", port)
	cmd := exec.CommandContext(ctx, "docker", "run", "--rm",
		"--name", containerName,
		"-p", fmt.Sprintf("127.0.0.1:%d:4096", port),
		b.cfg.ContainerImage,
	)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	cleanup := func() {
		exec.Command("docker", "rm", "-f", containerName).Run()
		cmd.Wait()
	}
	return cleanup, nil
}

func dialContainer(ctx context.Context, dialer net.Dialer, port int) (net.Conn, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	var lastErr error
	deadline, _ := ctx.Deadline()
	for time.Now().Before(deadline) {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("pyexec: container never came up: %w", lastErr)
}

func writeBrokerError(w io.Writer, err error) {
	WriteStderrFrame(w, err.Error())
	WriteTerminator(w)
}

// portPool hands out ports from [start, start+n) and blocks acquire until
// one is free, the other half of the broker's admission-control pair
// alongside the in-flight semaphore.
type portPool struct {
	available chan int
}

func newPortPool(start, n int) *portPool {
	ch := make(chan int, n)
	for i := 0; i < n; i++ {
		ch <- start + i
	}
	return &portPool{available: ch}
}

func (p *portPool) acquire(ctx context.Context) (int, error) {
	select {
	case port := <-p.available:
		return port, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (p *portPool) release(port int) {
	p.available <- port
}

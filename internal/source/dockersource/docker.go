// Package dockersource implements a trace-event source adapter that
// attaches to one container's combined stdout/stderr log stream and
// treats each line as a newline-delimited JSON trace-event frame,
// synthesizing a wtf.zone#create for the container itself before its
// first event. Grounded on the teacher's internal/docker (pooled
// HTTP client construction) and
// internal/monitors/container_monitor.go (context-aware reader around
// ContainerLogs + stdcopy demultiplexing).
package dockersource

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"

	"tracedb/internal/listener"
	"tracedb/internal/registry"
	"tracedb/internal/source"
	"tracedb/pkg/types"
)

// Config configures the Docker source adapter.
type Config struct {
	Host          string
	ContainerName string // container ID or name to attach to
	ZoneLocation  string // recorded as the zone's Location; defaults to Host

	// BatchSize bounds how many decoded lines accumulate between
	// beginEventBatch/endEventBatch pairs.
	BatchSize int
}

// Adapter is a types.Source attaching to one container's log stream.
type Adapter struct {
	cfg      Config
	logger   *logrus.Logger
	listener *listener.Listener
	reg      *registry.Registry
	cli      *client.Client

	batchMu sync.Mutex
	pending []types.Event
}

// newPooledClient builds a Docker API client over a connection-pooled
// HTTP transport, following the teacher's HTTPDockerClient tuning
// (keep-alives on, bounded idle connections per host).
func newPooledClient(host string) (*client.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	httpClient := &http.Client{Transport: transport}

	return client.NewClientWithOpts(
		client.WithHost(host),
		client.WithHTTPClient(httpClient),
		client.WithAPIVersionNegotiation(),
	)
}

func New(cfg Config, l *listener.Listener, reg *registry.Registry, logger *logrus.Logger) (*Adapter, error) {
	if cfg.ContainerName == "" {
		return nil, fmt.Errorf("dockersource: no container configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.ZoneLocation == "" {
		cfg.ZoneLocation = cfg.Host
	}

	cli, err := newPooledClient(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("dockersource: create docker client: %w", err)
	}
	return &Adapter{cfg: cfg, logger: logger, listener: l, reg: reg, cli: cli}, nil
}

// contextReader aborts a blocking Read as soon as ctx is cancelled,
// carried over from the teacher's container_monitor.go readerCtx so
// stdcopy.StdCopy unblocks cooperatively on shutdown.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// lineWriter decodes each newline-terminated write as one trace-event
// frame, implementing io.Writer so stdcopy.StdCopy can demux directly
// into it.
type lineWriter struct {
	a   *Adapter
	buf []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := indexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := w.buf[:i]
		w.buf = w.buf[i+1:]
		if len(line) > 0 {
			w.a.ingestLine(line)
		}
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func (a *Adapter) Start(ctx context.Context) error {
	if _, err := a.cli.Ping(ctx); err != nil {
		return fmt.Errorf("dockersource: docker daemon ping failed: %w", err)
	}

	identity := types.ZoneIdentity{Name: a.cfg.ContainerName, Type: "container", Location: a.cfg.ZoneLocation}
	a.listener.SourceAdded(0, types.ContextInfo{"container": a.cfg.ContainerName})

	options := dockertypes.ContainerLogsOptions{ShowStdout: true, ShowStderr: true, Follow: true, Timestamps: false}
	logStream, err := a.cli.ContainerLogs(ctx, a.cfg.ContainerName, options)
	if err != nil {
		return fmt.Errorf("dockersource: attach container logs: %w", err)
	}
	defer logStream.Close()

	a.pending = append(a.pending, source.ZoneCreateEvent(a.reg, identity, 0))

	wrapped := &contextReader{ctx: ctx, r: logStream}
	stdoutW := &lineWriter{a: a}
	stderrW := &lineWriter{a: a}
	_, err = stdcopy.StdCopy(stdoutW, stderrW, wrapped)
	a.flush()
	if err != nil && ctx.Err() == nil {
		a.listener.SourceError("docker log stream error", err.Error())
		return err
	}
	return ctx.Err()
}

func (a *Adapter) ingestLine(line []byte) {
	w, err := source.DecodeLine(line)
	if err != nil {
		a.listener.SourceError("docker decode error", err.Error())
		return
	}
	e := source.DecodeEvent(a.reg, w)

	a.batchMu.Lock()
	a.pending = append(a.pending, e)
	shouldFlush := len(a.pending) >= a.cfg.BatchSize
	a.batchMu.Unlock()

	if shouldFlush {
		a.flush()
	}
}

func (a *Adapter) flush() {
	a.batchMu.Lock()
	if len(a.pending) == 0 {
		a.batchMu.Unlock()
		return
	}
	batch := a.pending
	a.pending = nil
	a.batchMu.Unlock()

	a.listener.BeginEventBatch(types.ContextInfo{"container": a.cfg.ContainerName})
	for _, e := range batch {
		a.listener.TraceEvent(e)
	}
	a.listener.EndEventBatch()
}

func (a *Adapter) Stop() error {
	return a.cli.Close()
}

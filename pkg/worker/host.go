package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qutlas/cadmium/pkg/kernel"
	"github.com/qutlas/cadmium/pkg/logging"
)

// DefaultTimeout is the per-request deadline when none is configured.
const DefaultTimeout = 30 * time.Second

// RequestHandler executes one request synchronously.
type RequestHandler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to RequestHandler.
type HandlerFunc func(ctx context.Context, req Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response { return f(ctx, req) }

// Host runs each request on its own goroutine with a deadline.
//
// A request that misses its deadline gets a TIMEOUT response immediately.
// Its goroutine keeps running until the operation checks its context or
// completes; the late result is discarded.
type Host struct {
	handler RequestHandler
	timeout time.Duration
	logger  *slog.Logger

	mu         sync.Mutex
	generation uint64
	inflight   sync.WaitGroup
	running    atomic.Int64
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostLogger sets the host's logger.
func WithHostLogger(l *slog.Logger) HostOption {
	return func(h *Host) { h.logger = logging.OrNop(l) }
}

// NewHost returns a Host running requests through handler. A timeout of
// zero selects DefaultTimeout; a negative timeout disables the deadline.
func NewHost(handler RequestHandler, timeout time.Duration, opts ...HostOption) *Host {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	h := &Host{handler: handler, timeout: timeout, logger: logging.Nop()}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Ready returns the handler's READY message, or a bare one if the handler
// does not describe itself.
func (h *Host) Ready() Response {
	if r, ok := h.handler.(interface{ Ready() Response }); ok {
		return r.Ready()
	}
	return Response{Type: TypeReady}
}

// Generation returns the number of requests started so far.
func (h *Host) Generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generation
}

// Running returns the number of request goroutines still executing,
// including abandoned ones.
func (h *Host) Running() int {
	return int(h.running.Load())
}

// Do runs req and waits for its response, the deadline, or ctx.
func (h *Host) Do(ctx context.Context, req Request) Response {
	h.mu.Lock()
	h.generation++
	gen := h.generation
	h.mu.Unlock()

	cancel := context.CancelFunc(func() {})
	if h.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
	}
	defer cancel()

	ch := make(chan Response, 1)
	var abandoned atomic.Bool

	h.inflight.Add(1)
	h.running.Add(1)
	go func() {
		defer h.inflight.Done()
		defer h.running.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("request panicked", "seq", gen, "id", req.ID, "panic", r)
				ch <- ErrorResponse(req.ID, kernel.Errorf(kernel.KindInternal, string(req.Operation), "panic: %v", r))
			}
		}()

		resp := h.handler.Handle(ctx, req)
		if abandoned.Load() {
			h.logger.Debug("discarding late result", "seq", gen, "id", req.ID, "operation", req.Operation)
		}
		ch <- resp
	}()

	select {
	case resp := <-ch:
		resp.ID = req.ID
		return resp
	case <-ctx.Done():
		abandoned.Store(true)
		err := contextError(string(req.Operation), ctx.Err())
		if kernel.KindOf(err) == kernel.KindTimeout {
			err = kernel.Errorf(kernel.KindTimeout, string(req.Operation), "timed out after %s", h.timeout)
		}
		h.logger.Warn("request abandoned", "seq", gen, "id", req.ID, "operation", req.Operation, "err", err)
		return ErrorResponse(req.ID, err)
	}
}

// Submit runs req asynchronously. The returned channel receives exactly
// one response.
func (h *Host) Submit(ctx context.Context, req Request) <-chan Response {
	out := make(chan Response, 1)
	go func() { out <- h.Do(ctx, req) }()
	return out
}

// Wait blocks until every request goroutine, including abandoned ones,
// has returned.
func (h *Host) Wait() {
	h.inflight.Wait()
}

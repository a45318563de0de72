package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler cancels a context on SIGINT/SIGTERM and tells the user
// what happens to in-flight work. Batch runs persist per transaction, so an
// interrupt never loses completed work.
type InterruptHandler struct {
	writer      io.Writer
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates an interrupt handler writing to the given
// writer, defaulting to stdout.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stdout
	}
	return &InterruptHandler{writer: writer}
}

// Watch returns a context canceled on the first interrupt signal. The
// returned stop function releases the signal handler.
func (h *InterruptHandler) Watch(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigChan:
			h.mu.Lock()
			if !h.interrupted {
				h.interrupted = true
				fmt.Fprintln(h.writer)
				fmt.Fprintln(h.writer, FormatWarning("Interrupted. Completed transactions are saved; rerun to continue."))
			}
			h.mu.Unlock()
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// Interrupted reports whether an interrupt was received.
func (h *InterruptHandler) Interrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

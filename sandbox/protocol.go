package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/caffeineduck/quickhub/protocol"
	"go.uber.org/zap"
)

// Serve runs a Frame behind a byte stream: requests are read from r and
// every outbound message is written to w, one JSON document per line. It is
// the child side of Process and returns when r reaches EOF, ctx is done, or
// writing fails.
func Serve(ctx context.Context, r io.Reader, w io.Writer, opts ...Option) error {
	frame := NewFrame(opts...)
	if err := frame.Start(); err != nil {
		return err
	}
	defer frame.Close()

	logger := frame.cfg.logger
	enc := protocol.NewEncoder(w)

	writeErr := make(chan error, 1)
	go func() {
		for msg := range frame.Messages() {
			if err := enc.Encode(msg); err != nil {
				writeErr <- err
				return
			}
		}
	}()

	readErr := make(chan error, 1)
	go func() {
		dec := protocol.NewDecoder(r)
		for {
			var msg protocol.HostMessage
			err := dec.Decode(&msg)
			if errors.Is(err, protocol.ErrBadPayload) {
				logger.Warn("dropping malformed request", zap.Error(err))
				continue
			}
			if err != nil {
				readErr <- err
				return
			}
			if err := frame.Post(msg); err != nil {
				readErr <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-writeErr:
		return fmt.Errorf("write to host: %w", err)
	case err := <-readErr:
		if err == io.EOF || errors.Is(err, ErrClosed) {
			return nil
		}
		return fmt.Errorf("read from host: %w", err)
	}
}

package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"rps-wager-system/coordinator"
)

var (
	errStreamClosed      = errors.New("stream closed")
	errSettlementPending = errors.New("settlement failed, it will be retried")
	errInternal          = errors.New("internal server error")
)

// SSESink writes coordinator events to one Server-Sent Events response. The
// first failed write or flush marks the connection as gone and cancels the
// stream's context.
type SSESink struct {
	mu     sync.Mutex
	w      *bufio.Writer
	cancel context.CancelFunc
	closed bool
}

func NewSSESink(w *bufio.Writer, cancel context.CancelFunc) *SSESink {
	return &SSESink{w: w, cancel: cancel}
}

func (s *SSESink) Send(e coordinator.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStreamClosed
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", e.Status, payload); err != nil {
		s.fail()
		return err
	}
	// Flush is where fasthttp notices the client went away
	if err := s.w.Flush(); err != nil {
		s.fail()
		return err
	}
	return nil
}

// Close detaches the sink from the response writer. Writes from other
// goroutines after Close are rejected.
func (s *SSESink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *SSESink) fail() {
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
}

// streamFunc runs one coordinator operation against an open stream.
type streamFunc func(ctx context.Context, sink coordinator.Sink) error

// stream switches the response to SSE and runs fn inside the body writer.
// Any error fn returns is delivered as a final error event.
func stream(c *fiber.Ctx, kind, matchID string, fn streamFunc) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	reqCtx := c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-reqCtx.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		sink := NewSSESink(w, cancel)
		defer sink.Close()

		// Initial keepalive (comment event)
		if _, err := w.WriteString(":\n\n"); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}

		if err := fn(ctx, sink); err != nil {
			log.Debug().Err(err).Str("match_id", matchID).Str("kind", kind).Msg("[SSE] stream ended with error")
			_ = sink.Send(errorEvent(kind, matchID, err))
		}
	})
	return nil
}

// errorEvent builds the terminal event for a failed stream. Storage and
// gateway errors are not shown to players.
func errorEvent(kind, matchID string, err error) coordinator.Event {
	switch {
	case errors.Is(err, coordinator.ErrSettlementFailure):
		log.Error().Err(err).Str("match_id", matchID).Msg("[SSE] settlement outstanding")
		err = errSettlementPending
	case httpStatus(err) == fiber.StatusInternalServerError:
		log.Error().Err(err).Str("match_id", matchID).Str("kind", kind).Msg("[SSE] stream failed")
		err = errInternal
	}
	return coordinator.ErrorEvent(kind, matchID, err)
}

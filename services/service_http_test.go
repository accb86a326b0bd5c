package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rps-wager-system/coordinator"
	"rps-wager-system/models"
)

func newTestApp(t *testing.T) (*fiber.App, *Ledger) {
	t.Helper()
	l := NewLedger(newTestDB(t), nil)
	reg := coordinator.NewRegistry()
	ms := NewMatchService(l, coordinator.NewJoinCoordinator(reg, l, 5*time.Millisecond),
		coordinator.NewMoveCoordinator(reg, l, l, 5*time.Millisecond))
	as := NewAccountService(l, models.DefaultStartingBalance)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User-ID"))
		return c.Next()
	})
	app.Post("/accounts", as.Register)
	app.Get("/accounts/me", as.GetMe)
	app.Post("/accounts/transfer", as.Transfer)
	app.Get("/accounts/me/transactions", as.ListTransactions)
	app.Post("/matches", ms.CreateMatch)
	app.Get("/matches", ms.ListMatches)
	app.Get("/matches/:id", ms.GetMatch)
	app.Get("/matches/:id/join", ms.StreamJoin)
	app.Get("/matches/:id/move", ms.StreamMove)
	return app, l
}

func call(t *testing.T, app *fiber.App, method, path, user string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", user)
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

const aliceID = "0b6f3c1e-8a52-4d8e-9a43-6f1f2d1c0a01"
const bobID = "0b6f3c1e-8a52-4d8e-9a43-6f1f2d1c0a02"

func TestAccountEndpoints(t *testing.T) {
	app, _ := newTestApp(t)

	resp, _ := call(t, app, "POST", "/accounts", aliceID, map[string]string{"display_name": "Alice"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, _ = call(t, app, "POST", "/accounts", aliceID, map[string]string{"display_name": "Alice"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	resp, _ = call(t, app, "POST", "/accounts", bobID, map[string]string{"display_name": ""})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	call(t, app, "POST", "/accounts", bobID, map[string]string{"display_name": "Bob"})

	resp, body := call(t, app, "GET", "/accounts/me", aliceID, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var me models.User
	require.NoError(t, json.Unmarshal(body, &me))
	assert.InDelta(t, 1000, me.Balance, 0.001)

	resp, _ = call(t, app, "POST", "/accounts/transfer", aliceID, map[string]interface{}{"receiver_id": bobID, "amount": 5000})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)

	resp, body = call(t, app, "POST", "/accounts/transfer", aliceID, map[string]interface{}{"receiver_id": bobID, "amount": 250})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"balance":750`)

	resp, body = call(t, app, "GET", "/accounts/me/transactions", bobID, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var txs []models.GameTransaction
	require.NoError(t, json.Unmarshal(body, &txs))
	assert.Len(t, txs, 1)

	resp, _ = call(t, app, "GET", "/accounts/me", "0b6f3c1e-8a52-4d8e-9a43-6f1f2d1c0aff", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestMatchEndpoints(t *testing.T) {
	app, l := newTestApp(t)
	ctx := context.Background()
	_, err := l.CreateUser(ctx, aliceID, "Alice", 100)
	require.NoError(t, err)

	resp, _ := call(t, app, "POST", "/matches", aliceID, map[string]float64{"bet_amount": 500})
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)

	resp, body := call(t, app, "POST", "/matches", aliceID, map[string]float64{"bet_amount": 20})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	var created MatchView
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.OpenSeat)

	resp, body = call(t, app, "GET", "/matches", aliceID, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var listed []MatchView
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	resp, _ = call(t, app, "GET", "/matches/"+created.ID, aliceID, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = call(t, app, "GET", "/matches/nope", aliceID, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = call(t, app, "GET", "/matches/"+created.ID+"/move?move=lizard", aliceID, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestJoinStreamReportsErrors(t *testing.T) {
	app, l := newTestApp(t)
	ctx := context.Background()
	_, err := l.CreateUser(ctx, aliceID, "Alice", 100)
	require.NoError(t, err)
	m, err := l.CreateMatch(ctx, aliceID, 10)
	require.NoError(t, err)
	require.NoError(t, l.AbandonMatch(ctx, m.ID))

	resp, body := call(t, app, "GET", "/matches/"+m.ID+"/join", aliceID, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), "event: error")
	assert.Contains(t, string(body), "full or over")
}

func TestSSESink(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	sink := NewSSESink(w, nil)

	require.NoError(t, sink.Send(coordinator.Event{Kind: coordinator.KindJoin, MatchID: "m1", Status: coordinator.StatusReady}))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "event: ready\ndata: {"))
	assert.True(t, strings.HasSuffix(out, "}\n\n"))

	sink.Close()
	assert.Error(t, sink.Send(coordinator.Event{Status: coordinator.StatusPending}))
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSSESinkCancelsOnWriteFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sink := NewSSESink(bufio.NewWriter(brokenWriter{}), cancel)

	assert.Error(t, sink.Send(coordinator.Event{Status: coordinator.StatusPending}))
	assert.Error(t, ctx.Err())
	assert.Error(t, sink.Send(coordinator.Event{Status: coordinator.StatusPending}))
}

func TestErrorEventHidesInternalErrors(t *testing.T) {
	dbErr := errors.New(`pq: relation "matches" does not exist`)

	ev := errorEvent(coordinator.KindMove, "m1", fmt.Errorf("load match m1: %w", dbErr))
	assert.Equal(t, coordinator.StatusError, ev.Status)
	assert.Equal(t, "internal server error", ev.Message)

	ev = errorEvent(coordinator.KindMove, "m1", fmt.Errorf("match m1: %w: %w", coordinator.ErrSettlementFailure, dbErr))
	assert.NotContains(t, ev.Message, "pq:")
	assert.Contains(t, ev.Message, "settlement failed")

	ev = errorEvent(coordinator.KindJoin, "m1", fmt.Errorf("join match m1: %w", coordinator.ErrMatchFull))
	assert.Equal(t, "join match m1: full or over", ev.Message)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		coordinator.ErrNotFound:            fiber.StatusNotFound,
		coordinator.ErrMatchFull:           fiber.StatusConflict,
		coordinator.ErrConcurrencyConflict: fiber.StatusConflict,
		coordinator.ErrInsufficientFunds:   fiber.StatusPaymentRequired,
		coordinator.ErrInvalidMove:         fiber.StatusBadRequest,
		coordinator.ErrSettlementFailure:   fiber.StatusInternalServerError,
		errors.New("boom"):                 fiber.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, httpStatus(err), err.Error())
	}
}

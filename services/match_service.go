package services

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"rps-wager-system/coordinator"
	"rps-wager-system/models"
)

const maxListedMatches = 100

// MatchService exposes match creation, lookup and the join/move streams.
type MatchService struct {
	Ledger *Ledger
	Joins  *coordinator.JoinCoordinator
	Moves  *coordinator.MoveCoordinator
}

func NewMatchService(ledger *Ledger, joins *coordinator.JoinCoordinator, moves *coordinator.MoveCoordinator) *MatchService {
	return &MatchService{Ledger: ledger, Joins: joins, Moves: moves}
}

type createMatchRequest struct {
	BetAmount float64 `json:"bet_amount"`
}

// MatchView is a match as listed to players.
type MatchView struct {
	models.Match
	OpenSeat bool `json:"open_seat"`
}

// CreateMatch opens a new match wagered at bet_amount.
func (s *MatchService) CreateMatch(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req createMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	m, err := s.Ledger.CreateMatch(c.UserContext(), userID, req.BetAmount)
	if err != nil {
		return respondError(c, err)
	}
	log.Info().Str("match_id", m.ID).Str("user_id", userID).Float64("bet", m.BetAmount).Msg("[MATCH] created")
	return c.Status(fiber.StatusCreated).JSON(MatchView{Match: *m, OpenSeat: true})
}

// ListMatches returns matches that are still waiting for players or moves.
func (s *MatchService) ListMatches(c *fiber.Ctx) error {
	matches, err := s.Ledger.OpenMatches(c.UserContext(), maxListedMatches)
	if err != nil {
		log.Error().Err(err).Msg("[MATCH] list failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list matches"})
	}

	views := make([]MatchView, 0, len(matches))
	for i := range matches {
		views = append(views, MatchView{Match: matches[i], OpenSeat: matches[i].HasFreeSeat()})
	}
	return c.JSON(views)
}

func (s *MatchService) GetMatch(c *fiber.Ctx) error {
	m, err := s.Ledger.GetMatch(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(MatchView{Match: *m, OpenSeat: m.HasFreeSeat() && !coordinator.MatchStatus(m.Status).Closed()})
}

// StreamJoin seats the caller and streams waiting/ready events.
func (s *MatchService) StreamJoin(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	matchID := c.Params("id")

	return stream(c, coordinator.KindJoin, matchID, func(ctx context.Context, sink coordinator.Sink) error {
		return s.Joins.Join(ctx, matchID, userID, sink)
	})
}

// StreamMove records the caller's move and streams pending notices until the
// result arrives. Unknown moves are rejected before the stream opens.
func (s *MatchService) StreamMove(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	matchID := c.Params("id")
	token := strings.TrimSpace(c.Query("move"))

	if _, err := coordinator.ParseMove(token); err != nil {
		return respondError(c, err)
	}

	return stream(c, coordinator.KindMove, matchID, func(ctx context.Context, sink coordinator.Sink) error {
		return s.Moves.SubmitMove(ctx, matchID, userID, token, sink)
	})
}

// httpStatus maps domain errors onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, coordinator.ErrMatchFull),
		errors.Is(err, coordinator.ErrConcurrencyConflict),
		errors.Is(err, coordinator.ErrMatchAbandoned),
		errors.Is(err, ErrAlreadyExists):
		return fiber.StatusConflict
	case errors.Is(err, coordinator.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, coordinator.ErrInvalidMove),
		errors.Is(err, coordinator.ErrInvalidState),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSelfTransfer),
		errors.Is(err, errMissingDisplayName):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, err error) error {
	code := httpStatus(err)
	if code == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("[API] request failed")
		return c.Status(code).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

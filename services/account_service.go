package services

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const maxListedTransactions = 50

// AccountService manages player accounts and balances.
type AccountService struct {
	Ledger          *Ledger
	StartingBalance float64
}

func NewAccountService(ledger *Ledger, startingBalance float64) *AccountService {
	return &AccountService{Ledger: ledger, StartingBalance: startingBalance}
}

type registerRequest struct {
	DisplayName string `json:"display_name"`
}

type transferRequest struct {
	ReceiverID string  `json:"receiver_id"`
	Amount     float64 `json:"amount"`
}

// Register opens an account for the gateway-authenticated user.
func (s *AccountService) Register(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	u, err := s.Ledger.CreateUser(c.UserContext(), userID, req.DisplayName, s.StartingBalance)
	if err != nil {
		return respondError(c, err)
	}
	log.Info().Str("user_id", u.ID).Str("display_name", u.DisplayName).Msg("[ACCOUNT] registered")
	return c.Status(fiber.StatusCreated).JSON(u)
}

// GetMe returns the caller's balance and record.
func (s *AccountService) GetMe(c *fiber.Ctx) error {
	u, err := s.Ledger.GetUser(c.UserContext(), c.Locals("user_id").(string))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(u)
}

// Transfer sends part of the caller's balance to another player.
func (s *AccountService) Transfer(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.ReceiverID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "receiver_id is required"})
	}

	u, err := s.Ledger.Transfer(c.UserContext(), userID, req.ReceiverID, req.Amount)
	if err != nil {
		return respondError(c, err)
	}
	log.Info().Str("sender_id", userID).Str("receiver_id", req.ReceiverID).Float64("amount", req.Amount).
		Msg("[ACCOUNT] transfer committed")
	return c.JSON(fiber.Map{
		"message": "Transfer successful",
		"balance": u.Balance,
	})
}

// ListTransactions returns the caller's latest payouts and transfers.
func (s *AccountService) ListTransactions(c *fiber.Ctx) error {
	txs, err := s.Ledger.Transactions(c.UserContext(), c.Locals("user_id").(string), maxListedTransactions)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(txs)
}

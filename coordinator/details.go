package coordinator

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatAmount renders a bet the way it is shown to players ("1,250.00").
func FormatAmount(amount float64) string {
	return printer.Sprintf("%.2f", amount)
}

// describe builds the human-readable result line for a resolved state.
func describe(s *MatchState) string {
	p1, p2 := displayName(s.name1, "Player 1"), displayName(s.name2, "Player 2")
	bet := FormatAmount(s.bet)

	switch s.outcome {
	case OutcomePlayer1Wins:
		return printer.Sprintf("%s (%s) beats %s (%s). %s wins %s from %s!",
			p1, s.move1.Title(), p2, s.move2.Title(), p1, bet, p2)
	case OutcomePlayer2Wins:
		return printer.Sprintf("%s (%s) beats %s (%s). %s wins %s from %s!",
			p2, s.move2.Title(), p1, s.move1.Title(), p2, bet, p1)
	}
	return printer.Sprintf("%s and %s both played %s. It's a draw, the %s bet stays put.",
		p1, p2, s.move1.Title(), bet)
}

func displayName(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

package domain

import (
	"fmt"
	"strings"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide acepta buy/sell en cualquier capitalización.
func ParseSide(raw string) (Side, error) {
	switch s := Side(strings.ToUpper(strings.TrimSpace(raw))); s {
	case SideBuy, SideSell:
		return s, nil
	default:
		return "", fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidOrder, raw)
	}
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusExecuted  Status = "EXECUTED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusPending, StatusExecuted, StatusCancelled, StatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidOrder, raw)
	}
}

// IsTerminal: no hay transición definida desde EXECUTED, CANCELLED ni FAILED.
func (s Status) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

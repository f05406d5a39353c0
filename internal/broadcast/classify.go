package broadcast

import (
	"errors"
	"strings"
	"time"

	"github.com/announcehq/broadcastq/internal/gateway"
)

// Outcome is the classified delivery result of one failed send.
type Outcome struct {
	Status      string // retry, blocked, deactivated, failed
	Reason      string
	Description string
	RetryAfter  time.Duration
}

const (
	OutcomeRetry       = "retry"
	OutcomeBlocked     = "blocked"
	OutcomeDeactivated = "deactivated"
	OutcomeFailed      = "failed"

	ReasonRateLimited = "rate_limited"
	ReasonBlocked     = "blocked_by_user"
	ReasonDeactivated = "user_deactivated"
	ReasonNotFound    = "not_found"
	ReasonUnknown     = "unknown"
)

// Classify maps a gateway error into the delivery taxonomy. It prefers the
// typed error's machine code; the description-pattern matching below it is
// a fallback for untyped errors and is deliberately confined to this file
// so nothing else in the engine parses gateway prose.
func Classify(err error) Outcome {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		desc := strings.ToLower(gwErr.Description)
		switch {
		case gwErr.Code == 429:
			return Outcome{Status: OutcomeRetry, Reason: ReasonRateLimited, Description: gwErr.Description, RetryAfter: gwErr.RetryAfter}
		case gwErr.Code == 403 && strings.Contains(desc, "deactivated"):
			return Outcome{Status: OutcomeDeactivated, Reason: ReasonDeactivated, Description: gwErr.Description}
		case gwErr.Code == 403 && strings.Contains(desc, "blocked"):
			return Outcome{Status: OutcomeBlocked, Reason: ReasonBlocked, Description: gwErr.Description}
		case gwErr.Code == 400 && strings.Contains(desc, "not found"):
			return Outcome{Status: OutcomeFailed, Reason: ReasonNotFound, Description: gwErr.Description}
		}
		return classifyText(gwErr.Description)
	}
	return classifyText(err.Error())
}

func classifyText(text string) Outcome {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "too many requests"), strings.Contains(lower, "rate limit"):
		return Outcome{Status: OutcomeRetry, Reason: ReasonRateLimited, Description: text}
	case strings.Contains(lower, "deactivated"):
		return Outcome{Status: OutcomeDeactivated, Reason: ReasonDeactivated, Description: text}
	case strings.Contains(lower, "blocked"):
		return Outcome{Status: OutcomeBlocked, Reason: ReasonBlocked, Description: text}
	case strings.Contains(lower, "chat not found"), strings.Contains(lower, "user not found"):
		return Outcome{Status: OutcomeFailed, Reason: ReasonNotFound, Description: text}
	}
	return Outcome{Status: OutcomeFailed, Reason: ReasonUnknown, Description: text}
}

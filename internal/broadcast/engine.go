package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"

	"github.com/announcehq/broadcastq/internal/config"
	"github.com/announcehq/broadcastq/internal/gateway"
	"github.com/announcehq/broadcastq/internal/history"
	"github.com/announcehq/broadcastq/internal/models"
)

// EngineConfig tunes the dispatch loop. SendDelay is the primary pacing
// mechanism against gateway throughput limits and dominates the wall-clock
// cost of a large broadcast.
type EngineConfig struct {
	SendDelay        time.Duration `env:"BROADCAST_SEND_DELAY,default=80ms"`
	CancelCheckEvery int           `env:"BROADCAST_CANCEL_CHECK_EVERY,default=25"`
	FlushEvery       int           `env:"BROADCAST_FLUSH_EVERY,default=25"`
	MaxRetryWait     time.Duration `env:"BROADCAST_MAX_RETRY_WAIT,default=5s"`
	Cooldown         time.Duration `env:"BROADCAST_COOLDOWN,default=0"`
}

func (c *EngineConfig) normalize() {
	if c.CancelCheckEvery <= 0 {
		c.CancelCheckEvery = 25
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 25
	}
	if c.MaxRetryWait <= 0 {
		c.MaxRetryWait = 5 * time.Second
	}
}

// BroadcastStore is the slice of broadcast persistence the engine needs.
type BroadcastStore interface {
	Get(ctx context.Context, id string) (*models.Broadcast, error)
	GetStatus(ctx context.Context, id string) (string, error)
	MarkSending(ctx context.Context, id string) (bool, error)
	SetTotalRecipients(ctx context.Context, id string, total int) error
	FlushCounters(ctx context.Context, id string, c models.Counters) error
	MarkCompleted(ctx context.Context, id string) error
}

// RecipientLedger records per-recipient delivery outcomes.
type RecipientLedger interface {
	Upsert(ctx context.Context, rec *models.Recipient) error
}

// Engine is the processor behind broadcast jobs: it resolves the audience,
// fans the message out recipient by recipient, classifies failures, writes
// the ledger, and keeps the aggregate counters current.
type Engine struct {
	cfg        EngineConfig
	broadcasts BroadcastStore
	ledger     RecipientLedger
	audience   AudienceProvider
	gw         gateway.Gateway
	history    history.Store
	log        zerolog.Logger
}

func NewEngine(
	cfg EngineConfig,
	broadcasts BroadcastStore,
	ledger RecipientLedger,
	audience AudienceProvider,
	gw gateway.Gateway,
	hist history.Store,
	log zerolog.Logger,
) *Engine {
	cfg.normalize()
	return &Engine{
		cfg:        cfg,
		broadcasts: broadcasts,
		ledger:     ledger,
		audience:   audience,
		gw:         gw,
		history:    hist,
		log:        log.With().Str("component", "broadcast.engine").Logger(),
	}
}

// SendPayload is the job payload for broadcast jobs.
type SendPayload struct {
	BroadcastID string `json:"broadcast_id"`
}

// Process dispatches one broadcast. Per-recipient failures are recorded and
// never escalate; only audience resolution and persistence errors return an
// error (and with it, a queue-level retry). Duplicate invocations of an
// already sending or finished broadcast return the stored counters as-is.
func (e *Engine) Process(ctx context.Context, payload datatypes.JSON) (any, error) {
	var p SendPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode broadcast payload: %w", err)
	}
	if p.BroadcastID == "" {
		return nil, fmt.Errorf("broadcast payload missing broadcast_id")
	}

	b, err := e.broadcasts.Get(ctx, p.BroadcastID)
	if err != nil {
		return nil, err
	}

	claimed, err := e.broadcasts.MarkSending(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Duplicate execution (retried job, concurrent dispatcher, or a
		// finished/cancelled broadcast). Report what already happened.
		current, err := e.broadcasts.Get(ctx, b.ID)
		if err != nil {
			return nil, err
		}
		e.log.Info().Str("broadcast", b.ID).Str("status", current.Status).Msg("skipping duplicate dispatch")
		return current.Counters(), nil
	}

	recipients, err := e.resolveAudience(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}

	counters := models.Counters{TotalRecipients: len(recipients)}
	if err := e.broadcasts.SetTotalRecipients(ctx, b.ID, len(recipients)); err != nil {
		return nil, err
	}

	content, err := decodeContent(b.Content)
	if err != nil {
		return nil, err
	}

	e.log.Info().Str("broadcast", b.ID).Int("recipients", len(recipients)).Msg("broadcast started")

	var limiter *rate.Limiter
	if e.cfg.SendDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(e.cfg.SendDelay), 1)
	}

	cancelled := false
	processed := 0
	for i, rcpt := range recipients {
		if i > 0 && i%e.cfg.CancelCheckEvery == 0 {
			status, err := e.broadcasts.GetStatus(ctx, b.ID)
			if err != nil {
				return nil, err
			}
			if status == config.BroadcastStatusCancelled {
				cancelled = true
				break
			}
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		if err := e.sendOne(ctx, b.ID, rcpt, content, &counters); err != nil {
			return nil, err
		}
		processed++

		counters.Progress = processed * 100 / len(recipients)
		if (i+1)%e.cfg.FlushEvery == 0 || i == len(recipients)-1 {
			if err := e.broadcasts.FlushCounters(ctx, b.ID, counters); err != nil {
				return nil, err
			}
		}
	}

	if cancelled {
		// Preserve what was sent; unprocessed recipients get no ledger rows
		// and no counter updates.
		if err := e.broadcasts.FlushCounters(ctx, b.ID, counters); err != nil {
			return nil, err
		}
		e.log.Info().Str("broadcast", b.ID).Int("processed", processed).Msg("broadcast cancelled mid-flight")
		return counters, nil
	}

	if len(recipients) == 0 {
		counters.Progress = 100
		if err := e.broadcasts.FlushCounters(ctx, b.ID, counters); err != nil {
			return nil, err
		}
	}
	if err := e.broadcasts.MarkCompleted(ctx, b.ID); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("broadcast", b.ID).
		Int("sent", counters.SentCount).
		Int("failed", counters.FailedCount).
		Int("blocked", counters.BlockedCount).
		Int("deactivated", counters.DeactivatedCount).
		Int("errors", counters.ErrorCount).
		Msg("broadcast finished")
	return counters, nil
}

// sendOne delivers to a single recipient: one send, one bounded inline
// retry on throttling, then a classified ledger row either way.
func (e *Engine) sendOne(ctx context.Context, broadcastID string, rcpt Recipient, content map[string]string, counters *models.Counters) error {
	text := localize(content, rcpt.Locale)

	msgID, sendErr := e.gw.Send(ctx, rcpt.ID, text)
	if sendErr != nil {
		outcome := Classify(sendErr)
		if outcome.Status == OutcomeRetry {
			wait := outcome.RetryAfter
			if wait <= 0 || wait > e.cfg.MaxRetryWait {
				wait = e.cfg.MaxRetryWait
			}
			e.log.Debug().Str("broadcast", broadcastID).Int64("recipient", rcpt.ID).Dur("wait", wait).Msg("rate limited, retrying once")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			msgID, sendErr = e.gw.Send(ctx, rcpt.ID, text)
		}
	}

	now := time.Now()
	rec := models.Recipient{
		BroadcastID: broadcastID,
		RecipientID: rcpt.ID,
	}

	if sendErr == nil {
		rec.Status = config.RecipientStatusSent
		rec.MessageID = msgID
		rec.SentAt = &now
		counters.SentCount++
		if e.history != nil && e.cfg.Cooldown > 0 {
			if err := e.history.MarkSend(ctx, rcpt.ID, now, e.cfg.Cooldown); err != nil {
				e.log.Warn().Err(err).Int64("recipient", rcpt.ID).Msg("send history update failed")
			}
		}
	} else {
		outcome := Classify(sendErr)
		rec.ErrorMessage = outcome.Description
		var gwErr *gateway.Error
		if errors.As(sendErr, &gwErr) {
			rec.ErrorCode = gwErr.Code
		}
		switch outcome.Status {
		case OutcomeBlocked:
			rec.Status = config.RecipientStatusBlocked
			counters.BlockedCount++
		case OutcomeDeactivated:
			rec.Status = config.RecipientStatusDeactivated
			counters.DeactivatedCount++
		default:
			rec.Status = config.RecipientStatusFailed
			if outcome.Reason == ReasonNotFound {
				counters.FailedCount++
			} else {
				counters.ErrorCount++
			}
		}
	}

	if err := e.ledger.Upsert(ctx, &rec); err != nil {
		return fmt.Errorf("record recipient outcome: %w", err)
	}
	return nil
}

// resolveAudience applies the exclusion list, drops bot accounts, filters
// recipients still inside their cooldown window, and fixes the iteration
// order so a re-run after a crash walks the same sequence.
func (e *Engine) resolveAudience(ctx context.Context, b *models.Broadcast) ([]Recipient, error) {
	var spec TargetSpec
	if len(b.TargetSpec) > 0 {
		if err := json.Unmarshal(b.TargetSpec, &spec); err != nil {
			return nil, fmt.Errorf("decode target spec: %w", err)
		}
	}

	resolved, err := e.audience.Resolve(ctx, spec)
	if err != nil {
		return nil, err
	}

	excluded := make(map[int64]struct{}, len(spec.ExcludeIDs))
	for _, id := range spec.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	now := time.Now()
	recipients := make([]Recipient, 0, len(resolved))
	for _, rcpt := range resolved {
		if rcpt.IsBot {
			continue
		}
		if _, skip := excluded[rcpt.ID]; skip {
			continue
		}
		if e.history != nil && e.cfg.Cooldown > 0 {
			last, ok, err := e.history.LastSend(ctx, rcpt.ID)
			if err != nil {
				// A cache failure must not shrink the audience.
				e.log.Warn().Err(err).Int64("recipient", rcpt.ID).Msg("send history lookup failed")
			} else if ok && now.Sub(last) < e.cfg.Cooldown {
				continue
			}
		}
		recipients = append(recipients, rcpt)
	}

	sort.Slice(recipients, func(i, j int) bool { return recipients[i].ID < recipients[j].ID })
	return recipients, nil
}

func decodeContent(raw datatypes.JSON) (map[string]string, error) {
	content := map[string]string{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &content); err != nil {
			return nil, fmt.Errorf("decode broadcast content: %w", err)
		}
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("broadcast has no content variants")
	}
	return content, nil
}

// localize picks the recipient's locale variant, falling back to the
// default locale and then to the lexicographically first variant.
func localize(content map[string]string, locale string) string {
	if text, ok := content[locale]; ok {
		return text
	}
	if text, ok := content[config.DefaultLocale]; ok {
		return text
	}
	keys := make([]string, 0, len(content))
	for k := range content {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return content[keys[0]]
}

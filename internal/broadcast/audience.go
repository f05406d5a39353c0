package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// TargetSpec is the stored audience filter of a broadcast: which tiers and
// locales to reach, plus an explicit exclusion list.
type TargetSpec struct {
	Tiers      []string `json:"tiers,omitempty"`
	Locales    []string `json:"locales,omitempty"`
	ExcludeIDs []int64  `json:"exclude_ids,omitempty"`
}

// Recipient is one resolved audience member.
type Recipient struct {
	ID     int64
	Locale string
	Tier   string
	IsBot  bool
}

// AudienceProvider resolves a target spec into concrete recipients. The
// provider applies the filter; the engine additionally removes the
// exclusion list, bot accounts, and recipients in their cooldown window.
type AudienceProvider interface {
	Resolve(ctx context.Context, spec TargetSpec) ([]Recipient, error)
}

// StaticAudience serves a fixed population loaded from a JSON export.
// Deployments with a real user directory plug in their own provider.
type StaticAudience struct {
	recipients []Recipient
}

type staticRecipient struct {
	ID     int64  `json:"id"`
	Locale string `json:"locale"`
	Tier   string `json:"tier"`
	IsBot  bool   `json:"is_bot,omitempty"`
}

func NewStaticAudience(recipients []Recipient) *StaticAudience {
	return &StaticAudience{recipients: recipients}
}

func LoadStaticAudience(path string) (*StaticAudience, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audience file: %w", err)
	}
	var entries []staticRecipient
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode audience file: %w", err)
	}
	recipients := make([]Recipient, len(entries))
	for i, e := range entries {
		recipients[i] = Recipient{ID: e.ID, Locale: e.Locale, Tier: e.Tier, IsBot: e.IsBot}
	}
	return &StaticAudience{recipients: recipients}, nil
}

var _ AudienceProvider = (*StaticAudience)(nil)

// Resolve applies the tier and locale filters; empty filters match all.
func (s *StaticAudience) Resolve(ctx context.Context, spec TargetSpec) ([]Recipient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Recipient, 0, len(s.recipients))
	for _, r := range s.recipients {
		if len(spec.Tiers) > 0 && !slices.Contains(spec.Tiers, r.Tier) {
			continue
		}
		if len(spec.Locales) > 0 && !slices.Contains(spec.Locales, r.Locale) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

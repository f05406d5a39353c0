package broadcast

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticAudience_Resolve(t *testing.T) {
	audience := NewStaticAudience([]Recipient{
		{ID: 1, Locale: "en", Tier: "free"},
		{ID: 2, Locale: "en", Tier: "pro"},
		{ID: 3, Locale: "ru", Tier: "pro"},
	})
	ctx := context.Background()

	tests := []struct {
		name    string
		spec    TargetSpec
		wantIDs []int64
	}{
		{"empty spec matches all", TargetSpec{}, []int64{1, 2, 3}},
		{"tier filter", TargetSpec{Tiers: []string{"pro"}}, []int64{2, 3}},
		{"locale filter", TargetSpec{Locales: []string{"en"}}, []int64{1, 2}},
		{"combined filters", TargetSpec{Tiers: []string{"pro"}, Locales: []string{"en"}}, []int64{2}},
		{"no match", TargetSpec{Tiers: []string{"enterprise"}}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := audience.Resolve(ctx, tt.spec)
			require.NoError(t, err)
			ids := make([]int64, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestLoadStaticAudience(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audience.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": 10, "locale": "en", "tier": "free"},
		{"id": 11, "locale": "ru", "tier": "pro", "is_bot": true}
	]`), 0o600))

	audience, err := LoadStaticAudience(path)
	require.NoError(t, err)

	got, err := audience.Resolve(context.Background(), TargetSpec{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Recipient{ID: 10, Locale: "en", Tier: "free"}, got[0])
	assert.True(t, got[1].IsBot)
}

func TestLoadStaticAudience_Errors(t *testing.T) {
	_, err := LoadStaticAudience(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))
	_, err = LoadStaticAudience(path)
	require.Error(t, err)
}

package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

// Valkey is the shared Store used when multiple dispatcher processes run
// against the same population. Keys carry their own TTL; eviction is the
// server's job.
type Valkey struct {
	client    valkeylib.Client
	keyPrefix string
}

type ValkeyConfig struct {
	Address   string `env:"VALKEY_ADDR"`
	Password  string `env:"VALKEY_PASSWORD"`
	DB        int    `env:"VALKEY_DB,default=0"`
	KeyPrefix string `env:"VALKEY_KEY_PREFIX,default=broadcastq"`
}

func NewValkey(cfg ValkeyConfig) (*Valkey, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Valkey{client: client, keyPrefix: prefix}, nil
}

var _ Store = (*Valkey)(nil)

func (v *Valkey) key(recipientID int64) string {
	return v.keyPrefix + "lastsend:" + strconv.FormatInt(recipientID, 10)
}

func (v *Valkey) LastSend(ctx context.Context, recipientID int64) (time.Time, bool, error) {
	res := v.client.Do(ctx, v.client.B().Get().Key(v.key(recipientID)).Build())
	if err := res.Error(); err != nil {
		if valkeylib.IsValkeyNil(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("get last send: %w", err)
	}
	raw, err := res.ToString()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode last send: %w", err)
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode last send: %w", err)
	}
	return time.Unix(unix, 0), true, nil
}

func (v *Valkey) MarkSend(ctx context.Context, recipientID int64, at time.Time, ttl time.Duration) error {
	cmd := v.client.B().Set().
		Key(v.key(recipientID)).
		Value(strconv.FormatInt(at.Unix(), 10)).
		Ex(ttl).
		Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("mark send: %w", err)
	}
	return nil
}

func (v *Valkey) Close() {
	v.client.Close()
}

// Package valkeymirror mirrors option cache entries into valkey. Entries are
// written with an expiry equal to their remaining validity, so valkey drops
// them on its own once they can no longer be used.
package valkeymirror

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/flowkit/go-optfetch/model"
	"github.com/flowkit/go-optfetch/optcache"
	logging "github.com/ipfs/go-log/v2"
	valkeylib "github.com/valkey-io/valkey-go"
)

var log = logging.Logger("optcache/valkeymirror")

const scanCount = 256

type record struct {
	Value     model.Options `json:"value"`
	WrittenAt time.Time     `json:"writtenAt"`
	TTL       time.Duration `json:"ttl"`
}

// Mirror stores cache entries in valkey under a key prefix.
type Mirror struct {
	client valkeylib.Client
	prefix string
	clock  clock.Clock
}

// Mirror must implement optcache.Mirror.
var _ optcache.Mirror = (*Mirror)(nil)

// New creates a Mirror using an existing valkey client. The caller remains
// responsible for closing the client.
func New(client valkeylib.Client, options ...Option) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("nil valkey client")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	prefix := opts.prefix
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &Mirror{
		client: client,
		prefix: prefix,
		clock:  opts.clock,
	}, nil
}

// Dial connects to the valkey server at addr and creates a Mirror that owns
// the connection. Call Close when done.
func Dial(ctx context.Context, addr string, options ...Option) (*Mirror, error) {
	client, err := valkeylib.NewClient(valkeylib.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create valkey client: %w", err)
	}
	if err = client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cannot ping valkey: %w", err)
	}
	m, err := New(client, options...)
	if err != nil {
		client.Close()
		return nil, err
	}
	return m, nil
}

// Close closes the underlying valkey client.
func (m *Mirror) Close() {
	m.client.Close()
}

func (m *Mirror) fullKey(key string) string {
	return m.prefix + key
}

func (m *Mirror) Load(ctx context.Context, key string) (optcache.Entry, bool, error) {
	cmd := m.client.B().Get().Key(m.fullKey(key)).Build()
	data, err := m.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return optcache.Entry{}, false, nil
		}
		return optcache.Entry{}, false, err
	}
	var rec record
	if err = json.Unmarshal(data, &rec); err != nil {
		log.Warnw("Ignoring corrupt mirrored entry", "err", err, "key", key)
		return optcache.Entry{}, false, nil
	}
	return optcache.Entry{
		Value:     rec.Value,
		WrittenAt: rec.WrittenAt,
		TTL:       rec.TTL,
	}, true, nil
}

func (m *Mirror) Store(ctx context.Context, key string, ent optcache.Entry) error {
	remaining := ent.Remaining(m.clock.Now())
	if remaining < time.Millisecond {
		// Already expired, nothing worth keeping.
		return m.Delete(ctx, key)
	}
	data, err := json.Marshal(record{
		Value:     ent.Value,
		WrittenAt: ent.WrittenAt,
		TTL:       ent.TTL,
	})
	if err != nil {
		return fmt.Errorf("cannot encode entry: %w", err)
	}
	cmd := m.client.B().Set().
		Key(m.fullKey(key)).
		Value(string(data)).
		Px(remaining).
		Build()
	return m.client.Do(ctx, cmd).Error()
}

func (m *Mirror) Delete(ctx context.Context, key string) error {
	cmd := m.client.B().Del().Key(m.fullKey(key)).Build()
	return m.client.Do(ctx, cmd).Error()
}

// Clear removes every key under the mirror's prefix.
func (m *Mirror) Clear(ctx context.Context) error {
	var cursor uint64
	var count int
	for {
		cmd := m.client.B().Scan().Cursor(cursor).Match(m.prefix + "*").Count(scanCount).Build()
		entry, err := m.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return err
		}
		if len(entry.Elements) != 0 {
			del := m.client.B().Del().Key(entry.Elements...).Build()
			if err = m.client.Do(ctx, del).Error(); err != nil {
				return err
			}
			count += len(entry.Elements)
		}
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}
	log.Debugw("Cleared mirror", "prefix", m.prefix, "count", count)
	return nil
}

// Package dsmirror mirrors option cache entries into a go-datastore, so that
// fetched option lists can be reused by a later session.
package dsmirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flowkit/go-optfetch/model"
	"github.com/flowkit/go-optfetch/optcache"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("optcache/dsmirror")

const defaultPrefix = "/optcache"

// record is the stored form of an entry.
type record struct {
	Value     model.Options `json:"value"`
	WrittenAt time.Time     `json:"writtenAt"`
	TTL       time.Duration `json:"ttl"`
}

// Mirror stores cache entries in a datastore under a key prefix.
type Mirror struct {
	ds     datastore.Batching
	prefix datastore.Key
}

// Mirror must implement optcache.Mirror and optcache.Pruner.
var (
	_ optcache.Mirror = (*Mirror)(nil)
	_ optcache.Pruner = (*Mirror)(nil)
)

// New creates a Mirror that writes to ds.
func New(ds datastore.Batching, options ...Option) (*Mirror, error) {
	if ds == nil {
		return nil, errors.New("nil datastore")
	}
	opts, err := getOpts(options)
	if err != nil {
		return nil, err
	}
	return &Mirror{
		ds:     ds,
		prefix: datastore.NewKey(opts.prefix),
	}, nil
}

func (m *Mirror) dsKey(key string) datastore.Key {
	return m.prefix.ChildString(key)
}

func (m *Mirror) Load(ctx context.Context, key string) (optcache.Entry, bool, error) {
	data, err := m.ds.Get(ctx, m.dsKey(key))
	if err != nil {
		if errors.Is(err, datastore.ErrNotFound) {
			return optcache.Entry{}, false, nil
		}
		return optcache.Entry{}, false, err
	}
	var rec record
	if err = json.Unmarshal(data, &rec); err != nil {
		// Unreadable record, drop it so that it is replaced on next write.
		log.Warnw("Removing corrupt mirrored entry", "err", err, "key", key)
		if err = m.ds.Delete(ctx, m.dsKey(key)); err != nil {
			return optcache.Entry{}, false, err
		}
		return optcache.Entry{}, false, nil
	}
	return optcache.Entry{
		Value:     rec.Value,
		WrittenAt: rec.WrittenAt,
		TTL:       rec.TTL,
	}, true, nil
}

func (m *Mirror) Store(ctx context.Context, key string, ent optcache.Entry) error {
	data, err := json.Marshal(record{
		Value:     ent.Value,
		WrittenAt: ent.WrittenAt,
		TTL:       ent.TTL,
	})
	if err != nil {
		return fmt.Errorf("cannot encode entry: %w", err)
	}
	return m.ds.Put(ctx, m.dsKey(key), data)
}

func (m *Mirror) Delete(ctx context.Context, key string) error {
	return m.ds.Delete(ctx, m.dsKey(key))
}

// Clear removes every entry under the mirror's prefix.
func (m *Mirror) Clear(ctx context.Context) error {
	_, err := m.deleteWhere(ctx, func(query.Entry) bool { return true })
	return err
}

// Prune removes entries that have expired at time now, and returns the number
// of entries removed.
func (m *Mirror) Prune(ctx context.Context, now time.Time) (int, error) {
	return m.deleteWhere(ctx, func(e query.Entry) bool {
		var rec record
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			return true
		}
		return now.Sub(rec.WrittenAt) >= rec.TTL
	})
}

func (m *Mirror) deleteWhere(ctx context.Context, match func(query.Entry) bool) (int, error) {
	results, err := m.ds.Query(ctx, query.Query{
		Prefix: m.prefix.String(),
	})
	if err != nil {
		return 0, err
	}
	ents, err := results.Rest()
	if err != nil {
		return 0, err
	}

	batch, err := m.ds.Batch(ctx)
	if err != nil {
		return 0, err
	}
	var count int
	for _, e := range ents {
		if !match(e) {
			continue
		}
		if err = batch.Delete(ctx, datastore.NewKey(e.Key)); err != nil {
			return 0, err
		}
		count++
	}
	if count == 0 {
		return 0, nil
	}
	if err = batch.Commit(ctx); err != nil {
		return 0, err
	}
	log.Debugw("Removed mirrored entries", "count", count)
	return count, nil
}

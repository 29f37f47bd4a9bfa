package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/valkey-io/valkey-go"

	"github.com/aitzolm/basomap/internal/core/domain"
)

const outboxPrefix = "outbox:"

// OutboxStore implements ports.OutboxStore on Valkey. Entries are plain
// JSON values under "outbox:<id>" keys with no TTL, so they survive
// restarts until a confirmed send deletes them.
type OutboxStore struct {
	client valkey.Client
}

// NewOutboxStore creates an OutboxStore sharing the cache's connection.
func NewOutboxStore(client valkey.Client) *OutboxStore {
	return &OutboxStore{client: client}
}

// Put persists an entry, overwriting any previous version of it.
func (s *OutboxStore) Put(ctx context.Context, entry domain.OutboxEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal outbox entry: %w", err)
	}
	cmd := s.client.Do(ctx,
		s.client.B().Set().Key(outboxPrefix+entry.ID).Value(string(data)).Build(),
	)
	return cmd.Error()
}

// Delete removes an entry by id.
func (s *OutboxStore) Delete(ctx context.Context, id string) error {
	cmd := s.client.Do(ctx, s.client.B().Del().Key(outboxPrefix+id).Build())
	return cmd.Error()
}

// List returns all queued entries ordered by id. Entry ids start with
// the enqueue timestamp, so the order is oldest-first.
func (s *OutboxStore) List(ctx context.Context) ([]domain.OutboxEntry, error) {
	var keys []string
	var cursor uint64
	for {
		resp := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(outboxPrefix+"*").Count(200).Build(),
		)
		if resp.Error() != nil {
			return nil, fmt.Errorf("scan outbox: %w", resp.Error())
		}
		entry, err := resp.AsScanEntry()
		if err != nil {
			return nil, err
		}
		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)

	entries := make([]domain.OutboxEntry, 0, len(keys))
	for _, key := range keys {
		cmd := s.client.Do(ctx, s.client.B().Get().Key(key).Build())
		if cmd.Error() != nil {
			if valkey.IsValkeyNil(cmd.Error()) {
				// Deleted between scan and get; fine.
				continue
			}
			return nil, cmd.Error()
		}
		data, err := cmd.AsBytes()
		if err != nil {
			return nil, err
		}
		var e domain.OutboxEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("decode outbox entry %s: %w", key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

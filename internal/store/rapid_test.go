package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/junglemonkey/wumpus-archiver/internal/model"
)

// TestMessageUpsertConvergesUnderRepeatedWrites checks the round-trip
// law spec.md §9 calls incremental scrape idempotence: applying
// UpsertMessage any number of times for the same message ID always
// leaves exactly one row, matching the last write applied.
func TestMessageUpsertConvergesUnderRepeatedWrites(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.UpsertGuild(ctx, model.Guild{ID: 1, Name: "g"})
	require.NoError(t, err)
	_, err = s.UpsertChannel(ctx, model.Channel{ID: 2, GuildID: 1, Name: "general", Kind: model.ChannelKindText})
	require.NoError(t, err)
	_, err = s.UpsertUser(ctx, model.User{ID: 3, Username: "someone"})
	require.NoError(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		writes := rapid.IntRange(1, 6).Draw(rt, "writes")

		var last model.Message
		for i := 0; i < writes; i++ {
			m := model.Message{
				ID:        100,
				ChannelID: 2,
				AuthorID:  3,
				Content:   rapid.StringN(0, 64, -1).Draw(rt, "content"),
				Pinned:    rapid.Bool().Draw(rt, "pinned"),
				SentAt:    time.Unix(1700000000, 0).UTC(),
			}
			got, err := s.UpsertMessage(ctx, m)
			if err != nil {
				rt.Fatalf("upsert failed: %v", err)
			}
			last = got
		}

		got, ok, err := s.GetMessage(ctx, 100)
		if err != nil {
			rt.Fatalf("get failed: %v", err)
		}
		if !ok {
			rt.Fatalf("message not found after %d writes", writes)
		}
		if got.Content != last.Content || got.Pinned != last.Pinned {
			rt.Fatalf("converged state %+v does not match last write %+v", got, last)
		}

		page, err := s.ListMessagesByChannel(ctx, 2, Pagination{Limit: 10})
		if err != nil {
			rt.Fatalf("list failed: %v", err)
		}
		if len(page) != 1 {
			rt.Fatalf("expected exactly one row for the message id, got %d", len(page))
		}
	})
}

package memory

import (
	"context"
	"testing"

	"leaderboard-kinetics/internal/storage"
	"leaderboard-kinetics/internal/storage/storagetest"
)

func TestLeaderboardStore_Contract(t *testing.T) {
	storagetest.LeaderboardStoreTests(t, func(*testing.T) storage.LeaderboardStore {
		return NewLeaderboardStore()
	})
	storagetest.TagListerTests(t, func(*testing.T) storage.LeaderboardStore {
		return NewLeaderboardStore()
	})
}

func TestLeaderboardStore_ReplaceCopiesInput(t *testing.T) {
	store := NewLeaderboardStore()
	ctx := context.Background()
	entries := storagetest.SampleLeaderboard()

	if err := store.Replace(ctx, "t", entries); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}
	entries[0].Score = -1

	got, _ := store.Load(ctx, "t")
	if got[0].Score == -1 {
		t.Errorf("Store was mutated through input slice")
	}
}

package cache

import (
	"context"
	"testing"
	"time"

	"driver-nav-service/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, retention time.Duration) (*RedisRoadCellStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisRoadCellStore(rdb, retention, nil), mr
}

func TestRedisRoadCellStorePutGet(t *testing.T) {
	store, _ := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	fetched := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	in := domain.MapData{
		Roads: []domain.RoadFeature{
			{HighwayClass: "primary", Name: "Van Buren", Points: orb.LineString{{-112.07, 33.45}, {-112.06, 33.45}}},
		},
		Places:    []domain.PlaceFeature{{Name: "Corner Rx", Type: "pharmacy", Lon: -112.071, Lat: 33.451}},
		FetchedAt: fetched,
		Stale:     true,
	}

	if err := store.PutCell(ctx, "3345,-11207", in); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := store.GetCell(ctx, "3345,-11207")
	if err != nil || !ok {
		t.Fatalf("get = ok %v, err %v", ok, err)
	}
	if len(got.Roads) != 1 || got.Roads[0].Name != "Van Buren" || len(got.Roads[0].Points) != 2 {
		t.Fatalf("roads = %+v", got.Roads)
	}
	if got.Roads[0].Points[1] != (orb.Point{-112.06, 33.45}) {
		t.Fatalf("point = %v", got.Roads[0].Points[1])
	}
	if len(got.Places) != 1 || got.Places[0].Type != "pharmacy" {
		t.Fatalf("places = %+v", got.Places)
	}
	if !got.FetchedAt.Equal(fetched) {
		t.Fatalf("fetched at = %v, want %v", got.FetchedAt, fetched)
	}
	// Staleness is decided by the reader, never persisted.
	if got.Stale {
		t.Fatalf("stale flag was persisted")
	}
}

func TestRedisRoadCellStoreMissAndRetention(t *testing.T) {
	store, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	if _, ok, err := store.GetCell(ctx, "missing"); ok || err != nil {
		t.Fatalf("miss = ok %v, err %v; want false, nil", ok, err)
	}

	if err := store.PutCell(ctx, "k", domain.MapData{FetchedAt: time.Now()}); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, _ := store.GetCell(ctx, "k"); ok {
		t.Fatalf("expected cell to expire after retention")
	}
}

func TestCellCodecRejectsGarbage(t *testing.T) {
	if _, err := decodeCell([]byte("not zstd")); err == nil {
		t.Fatalf("expected decode error")
	}
}

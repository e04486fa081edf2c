package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"ratelimit-gateway/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_CountsByClass(t *testing.T) {
	s := NewMemoryStatsStore()
	ctx := context.Background()

	s.Record(ctx, domain.StatsEvent{Class: domain.ClassAPI, Allowed: true})
	s.Record(ctx, domain.StatsEvent{Class: domain.ClassAPI, Allowed: true})
	s.Record(ctx, domain.StatsEvent{Class: domain.ClassAPI, Allowed: false})
	s.Record(ctx, domain.StatsEvent{Class: domain.ClassAuth, Allowed: false})

	total := s.Total()
	if total.Allowed != 2 || total.Denied != 2 {
		t.Fatalf("total = %+v, want 2 allowed / 2 denied", total)
	}

	byClass := s.ByClass()
	if c := byClass["api"]; c.Allowed != 2 || c.Denied != 1 {
		t.Fatalf("api counters = %+v", c)
	}
	if c := byClass["auth"]; c.Allowed != 0 || c.Denied != 1 {
		t.Fatalf("auth counters = %+v", c)
	}
}

func TestMemoryStatsStore_TracksKeysOnlyWhenAsked(t *testing.T) {
	ctx := context.Background()
	ev := domain.StatsEvent{Key: "api:ip:1.2.3.4", Class: domain.ClassAPI, Allowed: true}

	off := NewMemoryStatsStore()
	off.Record(ctx, ev)
	if len(off.ByKey()) != 0 {
		t.Fatalf("key tracking should be off by default")
	}

	on := NewMemoryStatsStore(WithTrackKeys(true))
	on.Record(ctx, ev)
	if c := on.ByKey()["api:ip:1.2.3.4"]; c.Allowed != 1 {
		t.Fatalf("key counters = %+v", c)
	}
}

func TestRedisStatsStore_WritesCounters(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStatsStore(rdb, WithStatsPrefix("stats"), WithStatsTrackKeys(true))
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	events := []domain.StatsEvent{
		{Key: "api:ip:9.9.9.9", Class: domain.ClassAPI, Allowed: true, At: at},
		{Key: "api:ip:9.9.9.9", Class: domain.ClassAPI, Allowed: false, At: at},
		{Key: "tier:pro:user:42", Class: domain.ClassForTier(domain.TierPro), Tier: "pro", Allowed: true, At: at},
	}
	for _, ev := range events {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	if got := mr.HGet("stats:total", "allowed"); got != "2" {
		t.Fatalf("total allowed = %q", got)
	}
	if got := mr.HGet("stats:total", "denied"); got != "1" {
		t.Fatalf("total denied = %q", got)
	}
	if got := mr.HGet("stats:class", "api:denied"); got != "1" {
		t.Fatalf("class denied = %q", got)
	}
	if got := mr.HGet("stats:tier", "pro:allowed"); got != "1" {
		t.Fatalf("tier allowed = %q", got)
	}
	if got := mr.HGet("stats:minute:202405011230", "allowed"); got != "2" {
		t.Fatalf("minute bucket allowed = %q", got)
	}
	if got := mr.HGet("stats:key:api:ip:9.9.9.9", "allowed"); got != "1" {
		t.Fatalf("per-key allowed = %q", got)
	}
}

func TestRedisStatsStore_NoMinuteBucketWhenDisabled(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStatsStore(rdb, WithStatsPrefix("stats"), WithStatsBucket("none"))
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	if err := s.Record(context.Background(), domain.StatsEvent{Class: domain.ClassAPI, Allowed: true, At: at}); err != nil {
		t.Fatal(err)
	}

	if mr.Exists("stats:minute:202405011230") {
		t.Fatalf("minute bucket should not be written")
	}
	if got := mr.HGet("stats:total", "allowed"); got != "1" {
		t.Fatalf("total allowed = %q", got)
	}
}

package app

import (
	"context"
	"testing"
	"time"
)

func TestParseLimiterResult(t *testing.T) {
	tests := []struct {
		name      string
		raw       interface{}
		wantCount int
		wantRetry int
		wantErr   bool
	}{
		{name: "ttl rounds up", raw: []interface{}{int64(3), int64(1500)}, wantCount: 3, wantRetry: 2},
		{name: "missing ttl uses window", raw: []interface{}{int64(1), int64(-1)}, wantCount: 1, wantRetry: 60},
		{name: "short ttl is at least a second", raw: []interface{}{int64(7), int64(10)}, wantCount: 7, wantRetry: 1},
		{name: "wrong shape", raw: "OK", wantErr: true},
		{name: "wrong count type", raw: []interface{}{"3", int64(100)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, retry, err := parseLimiterResult(tt.raw, 60000)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if count != tt.wantCount || retry != tt.wantRetry {
				t.Fatalf("got count=%d retry=%d, want count=%d retry=%d", count, retry, tt.wantCount, tt.wantRetry)
			}
		})
	}
}

func TestRedisRateLimiter_DisabledWithoutClient(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "")
	if limiter.prefix != "wirebuddy:rate_limit" {
		t.Fatalf("unexpected prefix %q", limiter.prefix)
	}
	count, retry, err := limiter.ConsumeRateLimit(context.Background(), "login", "ama", 5, time.Minute)
	if err != nil || count != 0 || retry != 0 {
		t.Fatalf("expected a no-op, got count=%d retry=%d err=%v", count, retry, err)
	}
}

func TestRedisRateLimiter_AttemptKey(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, " bank: ")

	tests := []struct {
		scope   string
		subject string
		want    string
		ok      bool
	}{
		{scope: "login", subject: "Ama", want: "bank:rate_limit:login:ama", ok: true},
		{scope: " login ", subject: " AMA ", want: "bank:rate_limit:login:ama", ok: true},
		{scope: "login", subject: "  "},
		{scope: "", subject: "ama"},
	}
	for _, tt := range tests {
		got, ok := limiter.attemptKey(tt.scope, tt.subject)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("attemptKey(%q, %q) = %q, %v; want %q, %v", tt.scope, tt.subject, got, ok, tt.want, tt.ok)
		}
	}
}

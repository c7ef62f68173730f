package repository

import (
	"testing"
	"time"

	"github.com/notifyhub/salon-notifier/internal/domain"
)

func TestBuildListWhere(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		where, args := buildListWhere(domain.AttemptFilter{})
		if where != "" || len(args) != 0 {
			t.Fatalf("expected empty where, got %q %v", where, args)
		}
	})

	t.Run("placeholders are numbered in order", func(t *testing.T) {
		tenant := "t1"
		ch := domain.ChannelSMS
		from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		where, args := buildListWhere(domain.AttemptFilter{TenantID: &tenant, Channel: &ch, From: &from})

		want := " WHERE tenant_id = $1 AND channel = $2 AND created_at >= $3"
		if where != want {
			t.Fatalf("expected %q, got %q", want, where)
		}
		if len(args) != 3 || args[0] != "t1" || args[1] != domain.ChannelSMS {
			t.Fatalf("unexpected args: %v", args)
		}
	})
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Fatal("empty string should be NULL")
	}
	if p := nullable("x"); p == nil || *p != "x" {
		t.Fatal("expected pointer to value")
	}
}

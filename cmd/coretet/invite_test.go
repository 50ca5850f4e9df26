package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/justestif/coretet/internal/db"
)

func TestWriteInvite(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	email := "band@example.com"
	redeemed := now.Add(-time.Hour)

	tests := []struct {
		name    string
		inv     db.Invite
		want    []string
		notWant []string
	}{
		{
			name:    "open invite",
			inv:     db.Invite{Code: "ABCD2345", ExpiresAt: now.Add(24 * time.Hour)},
			want:    []string{"Code:     ABCD2345", "Expires:  2026-03-02T12:00:00Z\n"},
			notWant: []string{"Email:", "Redeemed:", "(expired)"},
		},
		{
			name: "redeemed with email",
			inv:  db.Invite{Code: "ABCD2345", Email: &email, ExpiresAt: now.Add(24 * time.Hour), RedeemedAt: &redeemed},
			want: []string{"Email:    band@example.com", "Redeemed: 2026-03-01T11:00:00Z"},
		},
		{
			name: "expired",
			inv:  db.Invite{Code: "ABCD2345", ExpiresAt: now.Add(-time.Minute)},
			want: []string{"(expired)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writeInvite(&buf, &tt.inv, now)
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output has %q:\n%s", w, out)
				}
			}
		})
	}
}

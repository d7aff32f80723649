// Tests for whole-second interval arithmetic, including property checks
package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end time.Time
		want       int64
	}{
		{name: "zero", start: t0, end: t0, want: 0},
		{name: "ten seconds", start: t0, end: t0.Add(10 * time.Second), want: 10},
		{name: "sub-second remainder truncated", start: t0, end: t0.Add(1999 * time.Millisecond), want: 1},
		{name: "negative", start: t0.Add(5 * time.Second), end: t0, want: -5},
		{name: "under a second", start: t0, end: t0.Add(999 * time.Millisecond), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Duration(tt.start, tt.end))
		})
	}
}

func TestDurationProperties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		aMs := rapid.Int64Range(0, 10*365*24*3600*1000).Draw(t, "aMs")
		bMs := rapid.Int64Range(0, 10*365*24*3600*1000).Draw(t, "bMs")
		a := time.UnixMilli(aMs)
		b := time.UnixMilli(bMs)

		if Duration(a, a) != 0 {
			t.Fatalf("Duration(a, a) = %d, want 0", Duration(a, a))
		}
		if sum := Duration(a, b) + Duration(b, a); sum != 0 {
			t.Fatalf("Duration(a, b) + Duration(b, a) = %d, want 0", sum)
		}
		if bMs >= aMs && Duration(a, b) != (bMs-aMs)/1000 {
			t.Fatalf("Duration(a, b) = %d, want floor(%d/1000)", Duration(a, b), bMs-aMs)
		}
	})
}

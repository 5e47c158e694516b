package ratelimit

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var fixedTime = time.Date(2024, 5, 14, 10, 0, 0, 0, time.UTC)

func setFixedNow(t *testing.T) {
	t.Helper()
	old := now
	now = func() time.Time { return fixedTime }
	t.Cleanup(func() { now = old })
}

func TestMapIsRateLimited(t *testing.T) {
	setFixedNow(t)

	past := Deadline(fixedTime.Add(-time.Minute))
	future := Deadline(fixedTime.Add(time.Minute))

	tests := []struct {
		name string
		m    Map
		c    Category
		want bool
	}{
		{"empty map", Map{}, CategoryError, false},
		{"expired limit", Map{CategoryError: past}, CategoryError, false},
		{"active limit", Map{CategoryError: future}, CategoryError, true},
		{"other category", Map{CategoryError: future}, CategoryTransaction, false},
		{"all categories", Map{CategoryAll: future}, CategoryTransaction, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := tt.m.IsRateLimited(tt.c)
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapDeadline(t *testing.T) {
	early := Deadline(fixedTime.Add(time.Minute))
	late := Deadline(fixedTime.Add(time.Hour))

	m := Map{
		CategoryAll:   late,
		CategoryError: early,
	}
	// The category deadline and the deadline for all categories both apply;
	// the effective deadline is the later one.
	if got := m.Deadline(CategoryError); !got.Equal(late) {
		t.Errorf("got %v, want %v", got, late)
	}

	m = Map{
		CategoryAll:   early,
		CategoryError: late,
	}
	if got := m.Deadline(CategoryError); !got.Equal(late) {
		t.Errorf("got %v, want %v", got, late)
	}
}

func TestMapMerge(t *testing.T) {
	early := Deadline(fixedTime.Add(time.Minute))
	late := Deadline(fixedTime.Add(time.Hour))

	tests := []struct {
		name  string
		m     Map
		other Map
		want  Map
	}{
		{
			name:  "into empty",
			m:     Map{},
			other: Map{CategoryError: early},
			want:  Map{CategoryError: early},
		},
		{
			name:  "extends deadline",
			m:     Map{CategoryError: early},
			other: Map{CategoryError: late},
			want:  Map{CategoryError: late},
		},
		{
			name:  "never shortens",
			m:     Map{CategoryError: late},
			other: Map{CategoryError: early},
			want:  Map{CategoryError: late},
		},
		{
			name:  "distinct categories",
			m:     Map{CategoryError: early},
			other: Map{CategoryTransaction: late},
			want:  Map{CategoryError: early, CategoryTransaction: late},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tt.m.Merge(tt.other)
			if diff := cmp.Diff(tt.want, tt.m); diff != "" {
				t.Errorf("Merge mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

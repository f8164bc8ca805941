package recurrence

import (
	"testing"
	"time"
)

func BenchmarkEngineExpand(b *testing.B) {
	engine := NewEngine(time.UTC)
	start := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	until := start.AddDate(2, 0, 0)
	req := Request{Start: start, Duration: 90 * time.Minute, RepeatUntil: &until}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Expand(req); err != nil {
			b.Fatalf("Expand returned error: %v", err)
		}
	}
}

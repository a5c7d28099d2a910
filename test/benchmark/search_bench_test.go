package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/hyperjump/shirabe/internal/engine"
)

func fileRecords(n int) []engine.Record {
	recs := make([]engine.Record, n)
	for i := 0; i < n; i++ {
		recs[i] = engine.Record{ID: uint32(i + 1), Text: fmt.Sprintf("note %d weekly meeting agenda.md", i)}
	}
	return recs
}

func BenchmarkFuzzyEngineSearch(b *testing.B) {
	eng := engine.NewFuzzyEngine()
	eng.Set(engine.KindFiles, fileRecords(1000))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = eng.Search(ctx, engine.KindFiles, "meeting", 10)
	}
}

func BenchmarkTokenEngineSearch(b *testing.B) {
	eng := engine.NewTokenEngine()
	eng.Set(engine.KindFiles, fileRecords(1000))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = eng.Search(ctx, engine.KindFiles, "meeting", 10)
	}
}

func BenchmarkFuzzyEngineAdd(b *testing.B) {
	eng := engine.NewFuzzyEngine()
	eng.Set(engine.KindFiles, fileRecords(1000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eng.Add(engine.KindFiles, []engine.Record{{ID: uint32(i%1000 + 1), Text: "patched note.md"}})
	}
}

// Package metrics aggregates statistics about a stream of scene batches.
//
// The [Collector] records the latency of every batch fetch in an HDR histogram
// and counts how often each scene was drawn, so a run can report how much of
// the catalog it covered:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	batch, err := l.Next(ctx)
//	collector.RecordBatch(time.Since(start), batch, err)
//
//	stats := collector.Stats(catalog.Len())
//
// The Collector is safe for concurrent use.
package metrics

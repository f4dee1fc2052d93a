package utils

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// MonitorResources logs goroutine and heap usage every interval until ctx
// is done.
func MonitorResources(ctx context.Context, interval time.Duration, log *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	var mem runtime.MemStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			runtime.ReadMemStats(&mem)
			log.Info("resource monitor",
				"goroutines", runtime.NumGoroutine(),
				"heap_kb", float64(mem.HeapAlloc)/1024,
				"heap_objects", mem.HeapObjects,
			)
		}
	}
}

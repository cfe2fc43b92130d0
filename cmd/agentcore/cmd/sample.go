package cmd

import "context"

// sampleResources feeds the resource guard's process reading and the
// cache's hit-ratio into Prometheus, so agentcore_resource_guard_sample
// and agentcore_cache_hit_ratio update on serve's 5s poll rather than
// sitting unwired between scheduler tick events.
func sampleResources(app *App) {
	if sample, err := app.Guard.Sample(); err == nil {
		app.Metrics.Record("resource_guard_sample", sample.CPUPercent, map[string]string{"resource": "cpu_percent"})
		app.Metrics.Record("resource_guard_sample", sample.MemoryMB, map[string]string{"resource": "memory_mb"})
	}

	stats, err := app.Cache.Stats(context.Background())
	if err != nil {
		return
	}
	total := stats.Hits + stats.Entries
	if total == 0 {
		return
	}
	ratio := float64(stats.Hits) / float64(total)
	app.Metrics.Record("cache_hit_ratio", ratio, nil)
}

// Package shutdown coordinates graceful process termination.
//
// Hooks are registered while components start and run in reverse order
// once SIGINT/SIGTERM arrives (or the parent context ends), so the last
// component started is the first stopped. All hooks share one deadline.
//
// Usage:
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	h.OnShutdown("storage", engine.Close)
//	h.OnShutdown("autosave flush", registry.FlushAll)
//	err := h.Wait(ctx)
package shutdown

// Package service provides the simulation layer shared by every transport.
//
// SimService is the interface the REST API, the MCP tool server and the
// WebSocket hub sit on. The default implementation combines:
//
//   - a SessionManager holding one engine per session
//   - a ConfigManager loading scenarios from disk
//   - an optional EpisodeLedger that stores a summary of every finished episode
//   - an optional TraceSink receiving one TickEntry per executed tick
//
// A single service mutex serialises all engine access, so transports can call
// the service from many goroutines while each engine is only ever touched by
// one of them at a time.
//
// Usage:
//
//	sessions := session.NewManager()
//	configs, _ := config.NewManager("configs")
//	sim := service.NewSimService(sessions, configs,
//		service.WithLedger(ledger.NewMemoryLedger()),
//	)
//
//	info, err := sim.CreateSession(ctx, "classic")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	outcome, err := sim.Step(ctx, info.ID, []engine.Action{engine.ActionUp, engine.ActionBuildPanel}, false)
//
// Episodes:
//
// A session starts in episode 1. Every reset, explicit or triggered by
// Autoplay after an episode finishes, moves it to the next episode. The tick
// that first reports done ends the episode and records its summary.
package service

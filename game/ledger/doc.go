// Package ledger records summaries of finished episodes.
//
// A summary holds the outcome of one episode (steps, score, resources
// collected, panels standing) and cannot be used to restore a simulation.
// SQLiteLedger writes them to a SQLite database through the pure-Go
// modernc.org/sqlite driver; MemoryLedger keeps them in process.
//
//	l, err := ledger.Open(ctx, "episodes.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer l.Close()
//
//	svc := service.NewSimService(sessions, configs, service.WithLedger(l))
package ledger

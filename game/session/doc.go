// Package session keeps the in-memory set of running simulations.
//
// Each Session owns one engine, reset into its scenario's first episode when
// the session is created. Sessions use 4-character hex IDs, generated with
// crypto/rand when the caller does not supply one, and lookups are
// case-insensitive.
//
// The manager is safe for concurrent use. It guards only the session map;
// callers that drive an engine serialise access to it themselves (the
// service layer does this).
//
// Usage:
//
//	manager := session.NewManager()
//
//	sess, err := manager.Create("", scenario)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sess, err = manager.Get(sess.ID)
//	removed := manager.CleanupExpiredSessions(24 * time.Hour)
//
// Sessions live only in memory. Restarting the process drops them.
package session

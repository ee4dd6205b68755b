// Package websocket pushes simulation updates to browser observers.
//
// A Hub keeps the connected clients of each session. Clients connect with
// /ws?session=<id> and then only listen: after every mutating API call the
// server broadcasts the new SimState as a "state_update" message, and an
// "episode_done" event when a tick finishes an episode.
//
//	hub := websocket.NewHub()
//	go hub.Run()
//
//	hub.BroadcastToSession(sessionID, state)
//
// Messages are JSON objects of the form
//
//	{"session_id": "ab12", "event": "state_update", "state": {...}}
//
// Connections are kept alive with ping/pong; a client whose send buffer fills
// up is dropped.
package websocket

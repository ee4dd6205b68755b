// Package api provides the HTTP REST API for the solar farm simulation.
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions              - Create a session ({"scenario_id": "classic"})
//   - GET    /api/sessions              - List sessions (?sort=created|accessed&order=asc|desc&limit=n)
//   - GET    /api/sessions/{id}         - Session info with current state
//   - DELETE /api/sessions/{id}         - Delete a session
//
// Simulation:
//   - GET  /api/sessions/{id}/state        - Current snapshot, including the ASCII board
//   - GET  /api/sessions/{id}/observation  - Flat observation vector
//   - POST /api/sessions/{id}/step         - One tick ({"actions": [0, 4], "reset": false})
//   - POST /api/sessions/{id}/autoplay     - Random-agent ticks ({"ticks": 100})
//   - POST /api/sessions/{id}/reset        - New episode ({"seed": 42} is optional)
//   - GET  /api/sessions/{id}/history      - Tick history (?page&limit&order)
//
// Editing:
//   - POST /api/sessions/{id}/robots  - Append a robot ({"row": 1, "col": 2})
//   - POST /api/sessions/{id}/edit    - Editor click ({"tool": "panel", "row": 1, "col": 2})
//   - PUT  /api/sessions/{id}/cells   - Set one layer ({"layer": "resource", "row": 1, "col": 2, "value": true})
//
// Scenarios and results:
//   - GET  /api/scenarios         - List scenarios
//   - POST /api/scenarios         - Save a scenario
//   - GET  /api/scenarios/{name}  - Load a scenario
//   - GET  /api/episodes          - Finished episodes, newest first (?limit)
//
// Other:
//   - GET /health
//   - GET /ws?session={id} - WebSocket state stream
//
// Action codes are 0=up, 1=right, 2=down, 3=left, 4=build panel. Any other
// code leaves the robot in place.
//
// Every mutating endpoint pushes the new state to WebSocket clients of the
// session. Errors are returned as {"error": "..."}: 404 for unknown sessions
// or scenarios, 400 for bad input or out-of-bounds cells, 409 when a session
// has not been reset yet, 500 otherwise.
package api

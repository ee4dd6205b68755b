// Package mcp exposes the simulation to AI agents over the Model Context
// Protocol.
//
// Client is a thin proxy: every tool calls the REST API (see package api) and
// turns the JSON response into text, with the board drawn by engine.Render.
// Because of that, MCP agents, HTTP clients and WebSocket viewers all see the
// same sessions.
//
// Tools:
//   - create_session, list_sessions, get_session
//   - sim_state, observe, step, autoplay, reset_sim
//   - add_robot, edit_cell, set_cell, describe_cell
//   - tick_history, list_scenarios, list_episodes
//   - sim_instructions
//
// API failures come back as tool errors (mcp.NewToolResultError) rather than
// protocol errors, so the agent sees the message.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//
//	// stdio
//	server.ServeStdio(client.GetMCPServer())
//
//	// or mount behind an HTTP handler
//	response := client.GetMCPServer().HandleMessage(ctx, body)
package mcp

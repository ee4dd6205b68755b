package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/solarfarm/game/engine"
	"github.com/wricardo/mcp-training/solarfarm/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Solar Farm Simulation",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Solar Farm Simulation - MCP Interface

This is a thin client that proxies all requests to the REST API server.

OBJECTIVE:
Robots on a square grid collect resources (*) and build solar panels (P).
Panels produce electricity every tick; adjacent panels produce more.

AVAILABLE TOOLS:
- create_session, list_sessions, get_session: manage simulations
- sim_state: board and counters
- observe: raw observation vector
- step: one tick with one action code per robot
- autoplay: let the random agent run for a number of ticks
- reset_sim: start a new episode (optional seed)
- add_robot, edit_cell, set_cell, describe_cell: edit the grid
- tick_history: past ticks of the current episode
- list_scenarios, list_episodes: scenarios and finished episode results
- sim_instructions: full rules`),
	)

	c.registerTools()
}

func sessionProp() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Session ID",
	}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new simulation session, optionally from a named scenario",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"scenario_id": map[string]interface{}{
					"type":        "string",
					"description": "Scenario to use (see list_scenarios); defaults to classic",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active simulation sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProp()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Simulation
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "sim_state",
		Description: "Get the current board, robots, step count and score",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProp()},
			Required:   []string{"session_id"},
		},
	}, c.handleSimState)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "observe",
		Description: "Get the flat observation vector: 8 robot slots, obstacle/resource/panel layers row-major, step count, score",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{"session_id": sessionProp()},
			Required:   []string{"session_id"},
		},
	}, c.handleObserve)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "step",
		Description: "Advance one tick. actions[i] drives robot i: 0=up 1=right 2=down 3=left 4=build panel. Missing entries leave robots idle.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"actions": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "integer",
					},
					"description": "One action code per robot, in robot order",
				},
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Start a new episode before stepping",
				},
			},
			Required: []string{"session_id", "actions"},
		},
	}, c.handleStep)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "autoplay",
		Description: "Run the random agent for a number of ticks, starting new episodes as they finish",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"ticks":      intProp("Number of ticks to run"),
			},
			Required: []string{"session_id", "ticks"},
		},
	}, c.handleAutoplay)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_sim",
		Description: "Start a new episode. With a seed the random layout is reproducible.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"seed":       intProp("Optional seed for the random layout"),
			},
			Required: []string{"session_id"},
		},
	}, c.handleReset)

	// Editing
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "add_robot",
		Description: "Append a robot at a cell. It gets the next robot index.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"row":        intProp("Row (0-based)"),
				"col":        intProp("Column (0-based)"),
			},
			Required: []string{"session_id", "row", "col"},
		},
	}, c.handleAddRobot)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "edit_cell",
		Description: "Apply an editor tool at a cell: robot, obstacle (toggle), resource, panel or clear",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"tool": map[string]interface{}{
					"type": "string",
					"enum": []string{
						string(engine.ToolRobot),
						string(engine.ToolObstacle),
						string(engine.ToolResource),
						string(engine.ToolPanel),
						string(engine.ToolClear),
					},
					"description": "Editor tool",
				},
				"row": intProp("Row (0-based)"),
				"col": intProp("Column (0-based)"),
			},
			Required: []string{"session_id", "tool", "row", "col"},
		},
	}, c.handleEditCell)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "set_cell",
		Description: "Set or clear a single layer at a cell without touching the other layers",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"layer": map[string]interface{}{
					"type": "string",
					"enum": []string{
						string(engine.LayerObstacle),
						string(engine.LayerResource),
						string(engine.LayerPanel),
					},
				},
				"row": intProp("Row (0-based)"),
				"col": intProp("Column (0-based)"),
				"value": map[string]interface{}{
					"type": "boolean",
				},
			},
			Required: []string{"session_id", "layer", "row", "col", "value"},
		},
	}, c.handleSetCell)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "describe_cell",
		Description: "Describe every layer and robot at one cell",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"row":        intProp("Row (0-based)"),
				"col":        intProp("Column (0-based)"),
			},
			Required: []string{"session_id", "row", "col"},
		},
	}, c.handleDescribeCell)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tick_history",
		Description: "Get the tick history of the current episode",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": sessionProp(),
				"page":       intProp("Page number"),
				"limit":      intProp("Items per page"),
			},
			Required: []string{"session_id"},
		},
	}, c.handleTickHistory)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_scenarios",
		Description: "List available scenarios",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListScenarios)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_episodes",
		Description: "List finished episodes, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"limit": intProp("Maximum number of episodes"),
			},
		},
	}, c.handleListEpisodes)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "sim_instructions",
		Description: "Get the full simulation rules",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// intArg reads a JSON number argument. JSON numbers decode as float64.
func intArg(args map[string]interface{}, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	scenarioID, _ := args["scenario_id"].(string)

	body := map[string]string{}
	if scenarioID != "" {
		body["scenario_id"] = scenarioID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nScenario: %s\n\n%s", session.ID, session.ConfigName, formatSimState(session.State))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		score := 0.0
		step := 0
		if s.State != nil {
			score = s.State.Score
			step = s.State.StepCount
		}
		fmt.Fprintf(&b, "- %s (Scenario: %s, Episode: %d, Step: %d, Score: %.2f)\n",
			s.ID, s.ConfigName, s.Episode, step, score)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleSimState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var state engine.SimState
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSimState(&state)), nil
}

func (c *Client) handleObserve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, _ := arguments(request)["session_id"].(string)

	var response struct {
		Observation []float64 `json:"observation"`
		Size        int       `json:"size"`
	}
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/observation"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(response.Observation)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Observation (%d values):\n%s", response.Size, data)), nil
}

func (c *Client) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	actionsRaw, _ := args["actions"].([]interface{})
	reset, _ := args["reset"].(bool)

	actions := make([]int, 0, len(actionsRaw))
	for i, a := range actionsRaw {
		code, ok := a.(float64)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("actions[%d] is not a number", i)), nil
		}
		actions = append(actions, int(code))
	}

	body := map[string]interface{}{
		"actions": actions,
		"reset":   reset,
	}

	var outcome service.StepOutcome
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/step"), body, &outcome); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatStepOutcome(&outcome)), nil
}

func (c *Client) handleAutoplay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	ticks, ok := intArg(args, "ticks")
	if !ok {
		return mcp.NewToolResultError("ticks is required"), nil
	}

	var result service.AutoplayResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/autoplay"), map[string]int{"ticks": ticks}, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatAutoplay(&result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	var body interface{}
	if seed, ok := intArg(args, "seed"); ok {
		body = map[string]int64{"seed": int64(seed)}
	}

	var response struct {
		Message string           `json:"message"`
		State   *engine.SimState `json:"state"`
	}
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), body, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("%s\n\n%s", response.Message, formatSimState(response.State))), nil
}

func (c *Client) handleAddRobot(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	row, okRow := intArg(args, "row")
	col, okCol := intArg(args, "col")
	if !okRow || !okCol {
		return mcp.NewToolResultError("row and col are required"), nil
	}

	var state engine.SimState
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/robots"), map[string]int{"row": row, "col": col}, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	msg := fmt.Sprintf("Robot %d added at (%d,%d)\n\n%s", len(state.Robots)-1, row, col, formatSimState(&state))
	return mcp.NewToolResultText(msg), nil
}

func (c *Client) handleEditCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	tool, _ := args["tool"].(string)
	row, okRow := intArg(args, "row")
	col, okCol := intArg(args, "col")
	if !okRow || !okCol {
		return mcp.NewToolResultError("row and col are required"), nil
	}

	body := map[string]interface{}{"tool": tool, "row": row, "col": col}
	var state engine.SimState
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/edit"), body, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Applied %s at (%d,%d)\n\n%s", tool, row, col, formatSimState(&state))), nil
}

func (c *Client) handleSetCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	layer, _ := args["layer"].(string)
	value, okValue := args["value"].(bool)
	row, okRow := intArg(args, "row")
	col, okCol := intArg(args, "col")
	if !okRow || !okCol || !okValue {
		return mcp.NewToolResultError("row, col and value are required"), nil
	}

	body := map[string]interface{}{"layer": layer, "row": row, "col": col, "value": value}
	var state engine.SimState
	if err := c.apiCall(ctx, "PUT", sessionPath(sessionID, "/cells"), body, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Set %s=%t at (%d,%d)\n\n%s", layer, value, row, col, formatSimState(&state))), nil
}

func (c *Client) handleDescribeCell(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)
	row, okRow := intArg(args, "row")
	col, okCol := intArg(args, "col")
	if !okRow || !okCol {
		return mcp.NewToolResultError("row and col are required"), nil
	}

	var state engine.SimState
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	n := state.GridSize
	if row < 0 || row >= n || col < 0 || col >= n {
		return mcp.NewToolResultError(fmt.Sprintf("Cell (%d,%d) is out of bounds. Grid is %dx%d (0-%d)", row, col, n, n, n-1)), nil
	}

	return mcp.NewToolResultText(describeCell(&state, row, col)), nil
}

func (c *Client) handleTickHistory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	sessionID, _ := args["session_id"].(string)

	params := url.Values{}
	if page, ok := intArg(args, "page"); ok {
		params.Set("page", fmt.Sprint(page))
	}
	if limit, ok := intArg(args, "limit"); ok {
		params.Set("limit", fmt.Sprint(limit))
	}
	path := sessionPath(sessionID, "/history")
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var history service.HistoryResponse
	if err := c.apiCall(ctx, "GET", path, nil, &history); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatHistory(&history)), nil
}

func (c *Client) handleListScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var scenarios []service.ScenarioInfo
	if err := c.apiCall(ctx, "GET", "/api/scenarios", nil, &scenarios); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Scenarios:\n\n")
	for _, s := range scenarios {
		kind := "random"
		switch {
		case s.HasLayout:
			kind = "fixed layout"
		case s.Seeded:
			kind = "seeded"
		}
		fmt.Fprintf(&b, "• %s (%s)\n  %s\n  Grid: %dx%d, Max steps: %d, Start: %s\n\n",
			s.ConfigID, s.Name, s.Description, s.GridSize, s.GridSize, s.MaxSteps, kind)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleListEpisodes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/episodes"
	if limit, ok := intArg(arguments(request), "limit"); ok {
		path += fmt.Sprintf("?limit=%d", limit)
	}

	var response struct {
		Count    int                      `json:"count"`
		Episodes []service.EpisodeSummary `json:"episodes"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatEpisodes(response.Episodes)), nil
}

func (c *Client) handleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `Solar Farm Simulation - Rules

GRID:
A square grid, coordinates (row, col) from 0. Row 0 is the top.
Each cell can hold an obstacle, a resource and a panel. Robots stand on cells;
several robots may share one.

BOARD LEGEND:
  R  robot
  P  solar panel
  #  obstacle
  *  resource
  .  empty

ACTIONS (one code per robot, in robot order):
  0 up (row-1)   1 right (col+1)   2 down (row+1)   3 left (col-1)   4 build panel
Any other code leaves the robot idle. Missing codes leave the remaining robots idle.

EACH TICK, robots act in index order and see each other's changes:
• Moves are clamped at the grid edge. A move into an obstacle is reverted.
• After a move, a resource under the robot is collected: +1 score.
• Build panel places a panel under the robot unless the cell is an obstacle
  or already has a panel. The robot stays put and collects nothing.

ELECTRICITY, after all robots act:
• Every panel produces 1 unit, or 2 if an orthogonal neighbour is also a panel.
• Reward = electricity × 0.1, added to the score. Collection points are not
  part of the reward.

EPISODES:
The episode is done on the tick where the step count reaches max steps.
Stepping further still works and keeps reporting done. reset_sim (or step with
reset=true) starts a new episode; autoplay does so automatically.

OBSERVATION:
8 values for the first four robots (row, col), zero padded; then the obstacle,
resource and panel layers row-major; then step count and score.

TIPS:
• Clusters of panels double their output. A 2x2 block yields 8 units per tick.
• Build early: panels pay every remaining tick.
• Use describe_cell to check a cell before planning around it.`

// Formatters

func formatSessionInfo(session *service.SessionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session: %s\nScenario: %s\nEpisode: %d\nCreated: %s\nLast accessed: %s\n",
		session.ID, session.ConfigName, session.Episode,
		session.CreatedAt.Format(time.RFC3339), session.LastAccessedAt.Format(time.RFC3339))
	if session.State != nil {
		b.WriteString("\n")
		b.WriteString(formatSimState(session.State))
	}
	return b.String()
}

func formatSimState(state *engine.SimState) string {
	if state == nil {
		return "No state available"
	}
	if !state.Initialized {
		return fmt.Sprintf("Grid %dx%d not initialized. Use reset_sim to start an episode.", state.GridSize, state.GridSize)
	}

	board := state.Board
	if len(board) == 0 {
		board = engine.Render(state)
	}

	var b strings.Builder
	status := "running"
	if state.Done {
		status = "done"
	}
	fmt.Fprintf(&b, "Step %d/%d (%s)  Score: %.2f  Last reward: %.2f  Electricity: %d\n",
		state.StepCount, state.MaxSteps, status, state.Score, state.LastReward, state.LastElectricity)
	fmt.Fprintf(&b, "Panels: %d  Resources left: %d  Collected: %d\n\n",
		engine.CountSet(state.Panels), engine.CountSet(state.Resources), state.ResourcesCollected)

	b.WriteString("    ")
	for col := 0; col < state.GridSize; col++ {
		b.WriteString(fmt.Sprint(col % 10))
	}
	b.WriteString("\n")
	for row, line := range board {
		fmt.Fprintf(&b, "%3d %s\n", row, line)
	}

	b.WriteString("\nRobots:\n")
	for i, p := range state.Robots {
		fmt.Fprintf(&b, "  %d at (%d,%d)\n", i, p.Row, p.Col)
	}
	return b.String()
}

func formatStepOutcome(outcome *service.StepOutcome) string {
	var b strings.Builder
	if outcome.Reset {
		fmt.Fprintf(&b, "Started episode %d\n", outcome.Episode)
	}
	if r := outcome.Result; r != nil {
		fmt.Fprintf(&b, "Reward: %.2f  Electricity: %d  Collected: %d  Built: %d\n",
			r.Reward, r.Electricity, r.ResourcesCollected, r.PanelsBuilt)
		for _, ro := range r.Robots {
			fmt.Fprintf(&b, "  robot %d %s (%d,%d)->(%d,%d)%s\n",
				ro.Index, ro.Action, ro.From.Row, ro.From.Col, ro.To.Row, ro.To.Col, outcomeFlags(ro))
		}
	}
	if outcome.EpisodeEnded {
		fmt.Fprintf(&b, "Episode %d finished.\n", outcome.Episode)
	}
	b.WriteString("\n")
	b.WriteString(formatSimState(outcome.State))
	return b.String()
}

func outcomeFlags(ro engine.RobotOutcome) string {
	var flags []string
	if ro.Blocked {
		flags = append(flags, "blocked")
	}
	if ro.Built {
		flags = append(flags, "built")
	}
	if ro.Collected {
		flags = append(flags, "collected")
	}
	if len(flags) == 0 {
		return ""
	}
	return " [" + strings.Join(flags, ", ") + "]"
}

func formatAutoplay(result *service.AutoplayResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ran %d/%d ticks, %d episode(s) finished, total reward %.2f\n",
		result.TicksExecuted, result.RequestedTicks, result.EpisodesEnded, result.TotalReward)
	if result.Truncated {
		fmt.Fprintf(&b, "Request truncated to %d ticks\n", result.Limit)
	}
	b.WriteString("\n")
	b.WriteString(formatSimState(result.State))
	return b.String()
}

func formatHistory(history *service.HistoryResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tick History (page %d/%d, %d ticks total):\n\n", history.Page, history.TotalPages, history.TotalTicks)
	for _, t := range history.Ticks {
		codes := make([]string, len(t.Actions))
		for i, a := range t.Actions {
			codes[i] = a.String()
		}
		fmt.Fprintf(&b, "#%d [%s] reward=%.2f electricity=%d collected=%d score=%.2f",
			t.Step, strings.Join(codes, " "), t.Reward, t.Electricity, t.Collected, t.Score)
		if t.Done {
			b.WriteString(" done")
		}
		b.WriteString("\n")
	}
	if history.HasNext {
		fmt.Fprintf(&b, "\nMore ticks on page %d\n", history.Page+1)
	}
	return b.String()
}

func formatEpisodes(episodes []service.EpisodeSummary) string {
	if len(episodes) == 0 {
		return "No finished episodes yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Finished Episodes (%d):\n\n", len(episodes))
	for _, e := range episodes {
		fmt.Fprintf(&b, "- %s session=%s scenario=%s episode=%d steps=%d score=%.2f collected=%d panels=%d robots=%d\n",
			e.FinishedAt.Format(time.RFC3339), e.SessionID, e.Scenario, e.Episode, e.Steps, e.Score,
			e.ResourcesCollected, e.PanelsStanding, e.Robots)
	}
	return b.String()
}

func describeCell(state *engine.SimState, row, col int) string {
	i := row*state.GridSize + col
	cellAt := func(l engine.Layer) bool { return i < len(l) && l[i] }

	var robots []string
	for idx, p := range state.Robots {
		if p.Row == row && p.Col == col {
			robots = append(robots, fmt.Sprint(idx))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Cell (%d,%d):\n", row, col)
	fmt.Fprintf(&b, "  obstacle: %t\n  resource: %t\n  panel:    %t\n",
		cellAt(state.Obstacles), cellAt(state.Resources), cellAt(state.Panels))
	if len(robots) > 0 {
		fmt.Fprintf(&b, "  robots:   %s\n", strings.Join(robots, ", "))
	} else {
		b.WriteString("  robots:   none\n")
	}
	if cellAt(state.Obstacles) {
		b.WriteString("Robots cannot enter this cell.\n")
	}
	return b.String()
}

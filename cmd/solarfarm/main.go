// Command solarfarm runs the simulation without a server.
//
//	solarfarm play --scenario courtyard --seed 7 --render-every 10
//	solarfarm analyze --trace-dir trace
//
// play drives episodes with the random agent and prints the board and score;
// analyze summarises the tick traces written by the server or by play.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/mcp-training/solarfarm/agent"
	"github.com/wricardo/mcp-training/solarfarm/game/config"
	"github.com/wricardo/mcp-training/solarfarm/game/engine"
	"github.com/wricardo/mcp-training/solarfarm/game/service"
	"github.com/wricardo/mcp-training/solarfarm/game/trace"
)

// playSession is the session id written to traces produced by play
const playSession = "play"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "solarfarm",
		Usage: "run and inspect solar farm simulations from the terminal",
		Commands: []*cli.Command{
			{
				Name:  "play",
				Usage: "play episodes with the random agent",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "scenario", Value: config.DefaultName, Usage: "scenario to load"},
					&cli.StringFlag{Name: "config-dir", Value: "configs", Usage: "scenario directory", Sources: cli.EnvVars("CONFIG_DIR")},
					&cli.Int64Flag{Name: "seed", Usage: "seed for the layout, extra robots and agent (default: clock)"},
					&cli.IntFlag{Name: "episodes", Value: 1, Usage: "episodes to play"},
					&cli.IntFlag{Name: "robots", Usage: "extra robots placed on free cells after each reset"},
					&cli.IntFlag{Name: "render-every", Usage: "print the board every N ticks (0 prints only the final board)"},
					&cli.StringFlag{Name: "trace-dir", Usage: "write a tick trace to this directory", Sources: cli.EnvVars("TRACE_DIR")},
				},
				Action: play,
			},
			{
				Name:  "analyze",
				Usage: "summarise tick traces",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "trace-dir", Value: "trace", Usage: "directory of trace files", Sources: cli.EnvVars("TRACE_DIR")},
					&cli.StringFlag{Name: "file", Usage: "summarise a single trace file instead"},
					&cli.BoolFlag{Name: "json", Usage: "print the summary as JSON"},
				},
				Action: analyze,
			},
		},
	}
}

func play(ctx context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	configs, err := config.NewManager(cmd.String("config-dir"))
	if err != nil {
		return fmt.Errorf("failed to load scenarios: %w", err)
	}
	scenario, err := configs.LoadConfig(cmd.String("scenario"))
	if err != nil {
		return fmt.Errorf("scenario %q: %w", cmd.String("scenario"), err)
	}

	episodes := cmd.Int("episodes")
	if episodes < 1 {
		return fmt.Errorf("%w: episodes must be at least 1", service.ErrInvalidInput)
	}
	renderEvery := cmd.Int("render-every")
	extraRobots := cmd.Int("robots")
	if extraRobots < 0 {
		return fmt.Errorf("%w: robots must not be negative", service.ErrInvalidInput)
	}

	seed := time.Now().UnixNano()
	seeded := cmd.IsSet("seed")
	if seeded {
		seed = cmd.Int64("seed")
	}

	eng, err := engine.NewEngine(scenario)
	if err != nil {
		return err
	}

	var writer *trace.Writer
	if dir := cmd.String("trace-dir"); dir != "" {
		writer = trace.NewWriter(dir, playSession)
		defer func() {
			if err := writer.Close(); err != nil {
				log.Printf("Warning: Failed to close trace: %v", err)
			}
		}()
	}

	rng := rand.New(rand.NewSource(seed))
	episode := 1
	reset := func() engine.Observation {
		if seeded && len(scenario.Layout) == 0 {
			eng.ResetWithSeed(seed + int64(episode-1))
		} else {
			eng.ResetFromConfig()
		}
		placeRobots(eng, rng, extraRobots)
		return eng.Observe()
	}

	fmt.Fprintf(out, "Scenario: %s (%dx%d, %d steps)\n", scenario.Name, scenario.GridSize, scenario.GridSize, scenario.MaxSteps)
	obs := reset()
	policy := agent.NewRandomAgent(len(eng.Robots()), seed)

	step := func(actions []engine.Action) (*engine.StepResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := eng.Step(actions)
		if err != nil {
			return nil, err
		}
		if writer != nil {
			entry := &service.TickEntry{
				SessionID:   playSession,
				Episode:     episode,
				Step:        eng.StepCount(),
				Actions:     actions,
				Reward:      res.Reward,
				Electricity: res.Electricity,
				Score:       eng.Score(),
				Done:        res.Done,
				Time:        time.Now().UTC(),
			}
			if err := writer.Append(entry); err != nil {
				log.Printf("Warning: Failed to trace tick: %v", err)
			}
		}
		if renderEvery > 0 && eng.StepCount()%renderEvery == 0 && !res.Done {
			fmt.Fprintf(out, "\nTick %d  score=%.2f electricity=%d\n", eng.StepCount(), eng.Score(), res.Electricity)
			printBoard(out, eng.GetState())
		}
		return res, nil
	}

	var best float64
	onDone := func(res *engine.StepResult) engine.Observation {
		state := eng.GetState()
		fmt.Fprintf(out, "\nEpisode %d finished after %d ticks\n", episode, state.StepCount)
		printBoard(out, state)
		fmt.Fprintf(out, "Score: %.2f  Electricity: %d  Resources: %d  Panels: %d\n",
			state.Score, res.Electricity, state.ResourcesCollected, engine.CountSet(state.Panels))
		if episode == 1 || state.Score > best {
			best = state.Score
		}
		if episode == episodes {
			return res.Observation
		}
		episode++
		return reset()
	}

	result, err := agent.Run(policy, obs, episodes*scenario.MaxSteps, step, onDone)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nPlayed %d episode(s), %d ticks, total reward %.2f, best score %.2f\n",
		result.Episodes, result.Ticks, result.TotalReward, best)
	return nil
}

// placeRobots adds n robots on random cells without an obstacle. Grids that
// are entirely obstacles get none.
func placeRobots(eng *engine.SimEngine, rng *rand.Rand, n int) {
	size := eng.GridSize()
	for placed, tries := 0, 0; placed < n && tries < n*size*size*4; tries++ {
		row, col := rng.Intn(size), rng.Intn(size)
		if eng.Cell(engine.LayerObstacle, row, col) {
			continue
		}
		if err := eng.AddRobot(row, col); err == nil {
			placed++
		}
	}
}

func printBoard(out io.Writer, state *engine.SimState) {
	for _, row := range engine.Render(state) {
		fmt.Fprintln(out, "  "+row)
	}
}

func analyze(ctx context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	files := []string{cmd.String("file")}
	if files[0] == "" {
		var err error
		files, err = trace.Files(cmd.String("trace-dir"))
		if err != nil {
			return fmt.Errorf("failed to list traces: %w", err)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no trace files in %s", cmd.String("trace-dir"))
	}

	var entries []service.TickEntry
	for _, f := range files {
		batch, err := trace.ReadAll(f)
		if err != nil {
			return err
		}
		entries = append(entries, batch...)
	}

	summary := trace.Summarize(entries)
	if cmd.Bool("json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Fprintf(out, "=== Trace summary (%d file(s)) ===\n", len(files))
	fmt.Fprintf(out, "Ticks: %d\n", summary.Ticks)
	fmt.Fprintf(out, "Episodes finished: %d\n", summary.EpisodesFinished)
	fmt.Fprintf(out, "Total reward: %.2f (mean %.3f per tick)\n", summary.TotalReward, summary.MeanReward)

	if len(summary.ActionCounts) > 0 {
		var parts []string
		for a := engine.ActionUp; a <= engine.ActionBuildPanel; a++ {
			parts = append(parts, fmt.Sprintf("%s=%d", a, summary.ActionCounts[a.String()]))
		}
		fmt.Fprintf(out, "Actions: %s\n", strings.Join(parts, " "))
	}

	for _, s := range summary.Sessions {
		fmt.Fprintf(out, "\nSession %s\n", s.SessionID)
		fmt.Fprintf(out, "  ticks=%d episodes=%d reward=%.2f best_score=%.2f peak_electricity=%d\n",
			s.Ticks, s.EpisodesFinished, s.TotalReward, s.BestScore, s.PeakElectricity)
	}
	return nil
}

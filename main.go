// Command solarfarm-server serves the solar farm simulation.
//
// Modes:
//
//	server, http          REST API, WebSocket observers and a POST /mcp endpoint (default)
//	stdio-mcp, mcp-stdio  MCP over stdin/stdout, backed by a running server or an in-process one
//
// Scenarios come from -config-dir. Finished episodes go to -ledger-db (SQLite,
// in memory when unset) and every tick to -trace-dir when set. -ngrok exposes
// the HTTP mode through a public tunnel.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"

	"github.com/wricardo/mcp-training/solarfarm/api"
	"github.com/wricardo/mcp-training/solarfarm/game/config"
	"github.com/wricardo/mcp-training/solarfarm/game/ledger"
	"github.com/wricardo/mcp-training/solarfarm/game/service"
	"github.com/wricardo/mcp-training/solarfarm/game/session"
	"github.com/wricardo/mcp-training/solarfarm/game/trace"
	"github.com/wricardo/mcp-training/solarfarm/transport/mcp"
	"github.com/wricardo/mcp-training/solarfarm/transport/websocket"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Solar Farm Simulation Server"
)

const (
	sessionSweepInterval = time.Hour
	sessionMaxIdle       = 24 * time.Hour
	shutdownTimeout      = 10 * time.Second
)

var (
	port         = flag.Int("port", 8080, "HTTP server port")
	host         = flag.String("host", "localhost", "HTTP server host")
	configDir    = flag.String("config-dir", envOr("CONFIG_DIR", "configs"), "Directory containing scenario files")
	ledgerDB     = flag.String("ledger-db", os.Getenv("LEDGER_DB"), "SQLite file recording finished episodes (in-memory when empty)")
	traceDir     = flag.String("trace-dir", os.Getenv("TRACE_DIR"), "Directory for the zstd JSONL tick trace (disabled when empty)")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	version      = flag.Bool("version", false, "Show version information")
	ngrokEnabled = flag.Bool("ngrok", false, "Expose the HTTP server through an ngrok tunnel")
	ngrokAuth    = flag.String("ngrok-auth", "", "Ngrok auth token (or NGROK_AUTHTOKEN / NGROK_AUTH_TOKEN)")
	ngrokDomain  = flag.String("ngrok-domain", "", "Reserved ngrok domain (or NGROK_DOMAIN)")
)

// envOr returns the environment variable key, or fallback when it is unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "%s v%s\n\nUsage: %s [OPTIONS] [server|stdio-mcp]\n\nOptions:\n", AppName, Version, os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(out, "\nExamples:\n")
		fmt.Fprintf(out, "  %s -config-dir configs -ledger-db episodes.db\n", os.Args[0])
		fmt.Fprintf(out, "  %s -trace-dir trace -port 9090\n", os.Args[0])
		fmt.Fprintf(out, "  %s stdio-mcp\n", os.Args[0])
	}
}

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment variables from .env file")
	} else if !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, Version)
		return
	}

	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	mode := "server"
	if flag.NArg() > 0 {
		mode = flag.Arg(0)
	}

	var run func(service.SimService) error
	switch mode {
	case "server", "http":
		run = runHTTPServer
	case "stdio-mcp", "mcp-stdio", "mcp":
		run = runStdioMCP
	default:
		log.Fatalf("Unknown mode: %s. Use 'server' (default) or 'stdio-mcp'", mode)
	}

	log.Printf("Starting %s v%s (mode: %s)", AppName, Version, mode)

	simService, cleanup, err := initializeServices()
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer cleanup()

	if err := run(simService); err != nil {
		log.Printf("Server error: %v", err)
	}
}

// newHandler mounts the REST API and WebSocket hub at / and the MCP JSON-RPC
// endpoint at /mcp. MCP tools call back into the API at baseURL.
func newHandler(simService service.SimService, hub *websocket.Hub, baseURL string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(simService, hub))
	mux.Handle("/mcp", mcpHandler(mcp.NewClient(baseURL)))
	return mux
}

// mcpHandler answers one JSON-RPC message per POST
func mcpHandler(client *mcp.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(client.GetMCPServer().HandleMessage(r.Context(), body)); err != nil {
			log.Printf("Warning: Failed to write MCP response: %v", err)
		}
	}
}

// runHTTPServer serves until SIGINT/SIGTERM, then drains connections
func runHTTPServer(simService service.SimService) error {
	hub := websocket.NewHub()
	go hub.Run()

	addr := fmt.Sprintf("%s:%d", *host, *port)
	handler := newHandler(simService, hub, "http://"+addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("HTTP server listening on %s (REST /api, WebSocket /ws?session=<id>, MCP /mcp)", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	if token, domain, ok := ngrokSettings(); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveTunnel(ctx, handler, token, domain); err != nil {
				log.Printf("Warning: ngrok tunnel: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	wg.Wait()

	select {
	case err := <-serveErr:
		return err
	default:
		log.Println("Server stopped")
		return nil
	}
}

// ngrokSettings resolves the tunnel options from flags, then the environment.
// ok is false when the tunnel is disabled or has no auth token.
func ngrokSettings() (token, domain string, ok bool) {
	enabled := *ngrokEnabled
	if v := os.Getenv("NGROK_ENABLED"); v == "true" || v == "1" {
		enabled = true
	}
	if !enabled {
		return "", "", false
	}

	token = *ngrokAuth
	for _, key := range []string{"NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN"} {
		if token == "" {
			token = os.Getenv(key)
		}
	}
	if token == "" {
		log.Println("Warning: ngrok enabled but no auth token (use -ngrok-auth, NGROK_AUTHTOKEN or NGROK_AUTH_TOKEN)")
		return "", "", false
	}

	domain = *ngrokDomain
	if domain == "" {
		domain = os.Getenv("NGROK_DOMAIN")
	}
	return token, domain, true
}

// serveTunnel serves handler on a public ngrok endpoint until ctx is done
func serveTunnel(ctx context.Context, handler http.Handler, token, domain string) error {
	endpoint := ngrokConfig.HTTPEndpoint()
	if domain != "" {
		endpoint = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(domain))
	}

	tun, err := ngrok.Listen(ctx, endpoint, ngrok.WithAuthtoken(token))
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	log.Printf("Ngrok tunnel established: %s (REST %s/api, MCP %s/mcp)", tun.URL(), tun.URL(), tun.URL())

	tunnelServer := &http.Server{Handler: handler}
	go func() {
		<-ctx.Done()
		_ = tunnelServer.Close()
	}()

	if err := tunnelServer.Serve(tun); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Println("Ngrok tunnel closed")
	return nil
}

// initializeServices wires the config and session managers, the episode
// ledger and the tick trace into the simulation service. The returned cleanup
// closes the ledger and the trace. It also starts the idle-session sweep.
func initializeServices() (service.SimService, func(), error) {
	configManager, err := config.NewManager(*configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create config manager: %w", err)
	}

	sessionManager := session.NewManager()

	var episodeLedger service.EpisodeLedger
	if *ledgerDB != "" {
		sqliteLedger, err := ledger.Open(context.Background(), *ledgerDB)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open episode ledger: %w", err)
		}
		log.Printf("Recording finished episodes in %s", *ledgerDB)
		episodeLedger = sqliteLedger
	} else {
		episodeLedger = ledger.NewMemoryLedger()
	}

	opts := []service.Option{service.WithLedger(episodeLedger)}

	var traceWriter *trace.Writer
	if *traceDir != "" {
		traceWriter = trace.NewWriter(*traceDir, "ticks")
		opts = append(opts, service.WithTrace(traceWriter))
		log.Printf("Writing tick trace under %s", *traceDir)
	}

	simService := service.NewSimService(sessionManager, configManager, opts...)

	go sweepSessions(sessionManager, sessionSweepInterval, sessionMaxIdle)

	cleanup := func() {
		if traceWriter != nil {
			if err := traceWriter.Close(); err != nil {
				log.Printf("Warning: Failed to close tick trace: %v", err)
			}
		}
		if err := episodeLedger.Close(); err != nil {
			log.Printf("Warning: Failed to close episode ledger: %v", err)
		}
	}

	return simService, cleanup, nil
}

// sweepSessions drops sessions idle for longer than maxIdle, every interval
func sweepSessions(manager *session.Manager, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if removed := manager.CleanupExpiredSessions(maxIdle); removed > 0 {
			log.Printf("[SESSION] swept %d idle sessions", removed)
		}
	}
}

// serverAlive reports whether a simulation server answers /health at baseURL
func serverAlive(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// startInternalAPI serves the REST API on a random loopback port and returns
// its base URL. Stdout belongs to the MCP transport, so nothing here prints.
func startInternalAPI(simService service.SimService) (string, *http.Server, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get a loopback port: %w", err)
	}

	hub := websocket.NewHub()
	go hub.Run()

	httpServer := &http.Server{Handler: api.NewServer(simService, hub)}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Internal HTTP server error: %v", err)
		}
	}()

	return "http://" + listener.Addr().String(), httpServer, nil
}

// runStdioMCP serves MCP on stdio. Tools go to the server at -host/-port when
// one is running, so agents share its sessions; otherwise to an in-process API.
func runStdioMCP(simService service.SimService) error {
	baseURL := fmt.Sprintf("http://%s:%d", *host, *port)

	if serverAlive(baseURL) {
		log.Printf("MCP stdio using the running server at %s", baseURL)
	} else {
		internalURL, httpServer, err := startInternalAPI(simService)
		if err != nil {
			return err
		}
		defer httpServer.Close()
		baseURL = internalURL
		log.Printf("MCP stdio using an internal API at %s", baseURL)
	}

	return server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer())
}

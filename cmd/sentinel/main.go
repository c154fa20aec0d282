// Command sentinel runs the token-sniping signal pipeline: source
// adapters, cross-validation, gating, sizing, execution and position
// monitoring, plus an operator-facing HTTP API. Structured as a cobra CLI
// per SPEC_FULL §11's DOMAIN STACK table rather than the teacher's bare
// main(), since every other example repo in the pack reaches for cobra.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/tokensentinel/sentinel/internal/adapters"
	"github.com/tokensentinel/sentinel/internal/config"
	"github.com/tokensentinel/sentinel/internal/domain"
	"github.com/tokensentinel/sentinel/internal/orchestrator"
	"github.com/tokensentinel/sentinel/internal/snapshot"
	"github.com/tokensentinel/sentinel/internal/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:   "sentinel",
		Short: "Token-sniping signal ingestion, validation and position pipeline",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newSelftestCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the pipeline and operator HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline()
		},
	}
}

// registerDefaultAdapters wires the four concrete source adapters' poll/dial
// targets. They are not part of the tunable Config surface (SPEC_FULL §6's table
// never lists them): they identify *which vendor*, not how the pipeline
// behaves, so they stay process env vars read once at wiring time.
func registerDefaultAdapters(o *orchestrator.Orchestrator) {
	channel := getEnv("CHANNEL_LISTENER_URL", "")
	if channel != "" {
		o.RegisterAdapter(adapters.NewChannelListenerAdapter("primary", channel))
	}
	if ep := getEnv("SMART_MONEY_ENDPOINT", ""); ep != "" {
		o.RegisterAdapter(adapters.NewSmartMoneyAdapter(ep, 30*time.Second))
	}
	if ep := getEnv("HOT_BOARD_ENDPOINT", ""); ep != "" {
		o.RegisterAdapter(adapters.NewHotBoardAdapter(ep, 15*time.Second))
	}
	if ep := getEnv("MARKET_DISCOVERY_ENDPOINT", ""); ep != "" {
		o.RegisterAdapter(adapters.NewMarketDiscoveryAdapter(ep, 60*time.Second))
	}
}

// registerDefaultProviders wires the Chain Snapshot Service's per-chain
// providers. Like the source-adapter endpoints above, the provider URLs
// identify which aggregator vendor answers for SOL/BSC on-chain state,
// not pipeline behavior, so they stay env-read here rather than on
// Config; cfg.TopHolderExclusions (a behavioral threshold) does live on
// Config and is shared by both providers.
func registerDefaultProviders(o *orchestrator.Orchestrator, cfg *config.Config) {
	if ep := getEnv("SOL_PROVIDER_ENDPOINT", ""); ep != "" {
		quote := getEnv("SOL_PROVIDER_QUOTE_ENDPOINT", "")
		o.RegisterProvider(domain.ChainSOL, snapshot.NewSolanaProvider(ep, quote, cfg.TopHolderExclusions))
	}
	if ep := getEnv("BSC_PROVIDER_ENDPOINT", ""); ep != "" {
		quote := getEnv("BSC_PROVIDER_QUOTE_ENDPOINT", "")
		o.RegisterProvider(domain.ChainBSC, snapshot.NewBSCProvider(ep, quote, cfg.TopHolderExclusions))
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runPipeline() error {
	log := telemetry.New("cmd")
	cfg := config.Load()

	o := orchestrator.New(cfg)
	registerDefaultAdapters(o)
	registerDefaultProviders(o, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		log.Info("shutdown requested, grace period %s", cfg.ShutdownGrace)
		time.Sleep(cfg.ShutdownGrace)
	}()

	srv := &http.Server{
		Addr:    cfg.HTTPListenAddr,
		Handler: buildRouter(o),
	}

	go func() {
		log.Info("operator API listening on %s", cfg.HTTPListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server: %v", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-done
	return nil
}

// buildRouter mounts the operator dashboard feed, health check (adapted
// from the teacher's SimpleHealthCheck) and the gate-audit/status JSON
// endpoints behind Firebase auth, grounded in sawpanic-cryptorun's use of
// gorilla/mux for path-parameter routes the teacher's bare ServeMux never
// needed.
func buildRouter(o *orchestrator.Orchestrator) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthCheck).Methods(http.MethodGet)
	r.HandleFunc("/ws", o.Hub.HandleWebSocket)

	api := r.PathPrefix("/api").Subrouter()
	if o.Verifier != nil {
		api.Use(o.Verifier.Middleware)
	}
	api.HandleFunc("/positions", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, o.Positions.OpenPositions())
	}).Methods(http.MethodGet)
	api.HandleFunc("/gate-audit", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, o.GateAudit.Recent(50))
	}).Methods(http.MethodGet)
	api.HandleFunc("/positions/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := mux.Vars(req)["id"]
		pos, ok := o.Positions.Get(id)
		if !ok {
			http.NotFound(w, req)
			return
		}
		writeJSON(w, pos)
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// healthCheck mirrors the teacher's SimpleHealthCheck response shape.
func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

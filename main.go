package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/finagent/orchestrator/internal/approval"
	"github.com/finagent/orchestrator/internal/config"
	"github.com/finagent/orchestrator/internal/ledger"
	"github.com/finagent/orchestrator/internal/llm"
	"github.com/finagent/orchestrator/internal/queue"
	"github.com/finagent/orchestrator/internal/sequence"
	"github.com/finagent/orchestrator/internal/store"
	"github.com/finagent/orchestrator/internal/toolexec"
	"github.com/finagent/orchestrator/internal/tools"
	transport "github.com/finagent/orchestrator/internal/transport/http"
	v1 "github.com/finagent/orchestrator/internal/transport/http/v1"
	"github.com/finagent/orchestrator/internal/worker"
	"github.com/finagent/orchestrator/policy"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting orchestrator...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("LLM provider: %s", cfg.LLMProvider)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize LLM client
	llmClient, err := llm.NewClient(cfg.LLMProvider, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMTimeout)
	if err != nil {
		log.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// Initialize policy engine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize tool registry
	registry, err := tools.NewRegistry(tools.BuiltinCatalog())
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}

	// Initialize queue and services
	q := queue.NewMemoryQueue()
	defer q.Close()

	seq := sequence.NewIssuer(db)
	journalSvc := ledger.NewJournalService(db, seq)
	periodSvc := ledger.NewPeriodService(db)
	approvalSvc := approval.New(db, seq, q)
	executor := toolexec.New(journalSvc, periodSvc)

	// Initialize worker and consumers
	w := worker.New(registry, llmClient, db, db, executor, approvalSvc, policyEngine)

	var wg sync.WaitGroup
	startConsumers := func(n int, queueName string) {
		for i := 0; i < n; i++ {
			consumer := worker.NewConsumer(q, w, queueName)
			wg.Add(1)
			go func() {
				defer wg.Done()
				consumer.Run(ctx)
			}()
		}
	}
	startConsumers(cfg.OrchestratorWorkers, queue.QueueOrchestrator)
	startConsumers(cfg.ToolWorkers, queue.QueueToolExec)
	log.Printf("Started %d orchestrator and %d tool consumers", cfg.OrchestratorWorkers, cfg.ToolWorkers)

	// Create the admin HTTP server
	server := transport.NewServer(v1.Dependencies{
		Approvals: approvalSvc,
		Journal:   journalSvc,
		Periods:   periodSvc,
		Registry:  registry,
		Events:    db,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Admin API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down orchestrator...")

	// Graceful shutdown: stop consumers first so in-flight items finish or
	// return to the queue, then drain the HTTP server.
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("Orchestrator stopped")
}

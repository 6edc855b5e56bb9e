// Resourced is a multi-tenant document retrieval server for MCP clients.
//
// Each request carries its own vector store credential, so one running
// server can answer retrieval tool calls for many isolated tenants. The
// resource corpus lives on local disk and is synchronized into the calling
// tenant's store on demand.
//
// Usage:
//
//	# Start the server with defaults
//	resourced serve
//
//	# Start with a config file and environment overrides
//	RESOURCED_SERVER_PORT=9000 resourced serve --config /etc/resourced/config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resourced/internal/config"
	"github.com/fyrsmithlabs/resourced/internal/conncache"
	"github.com/fyrsmithlabs/resourced/internal/credentials"
	"github.com/fyrsmithlabs/resourced/internal/embeddings"
	"github.com/fyrsmithlabs/resourced/internal/ingest"
	"github.com/fyrsmithlabs/resourced/internal/logging"
	"github.com/fyrsmithlabs/resourced/internal/mcp"
	"github.com/fyrsmithlabs/resourced/internal/query"
	"github.com/fyrsmithlabs/resourced/internal/retrieval"
	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

// Version information (set via ldflags during build)
var version = "dev"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "resourced",
	Short:   "Multi-tenant document retrieval server for MCP clients",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the retrieval server",
	Long: `Start the retrieval server.

The server answers MCP tool calls on POST /mcp. Every tool request must
carry a tenant store credential in the Qdrant-Uri header (or as a bearer
token); the server holds no store credentials of its own.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
}

// runServe wires the services together and blocks until shutdown.
func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	supported, err := cfg.SupportedResources()
	if err != nil {
		return err
	}
	logger.Info("starting resourced",
		zap.Int("port", cfg.Server.Port),
		zap.String("resource_root", cfg.Resources.Root),
		zap.Strings("resources", supported),
	)

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		Timeout: cfg.Embeddings.Timeout,
	})
	if err != nil {
		return fmt.Errorf("initializing embedding service: %w", err)
	}

	pipeline, err := ingest.NewPipeline(embedder, ingest.Config{
		SplitterConfig: ingest.SplitterConfig{
			ChunkSize:    cfg.Ingest.ChunkSize,
			ChunkOverlap: cfg.Ingest.ChunkOverlap,
			Separators:   cfg.Ingest.Separators,
		},
		Retention:        cfg.Ingest.Retention,
		EmbedConcurrency: cfg.Ingest.EmbedConcurrency,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing ingestion pipeline: %w", err)
	}

	engine, err := query.NewEngine(embedder, query.Config{
		TopK:          cfg.Query.TopK,
		CandidatePool: cfg.Query.CandidatePool,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing query engine: %w", err)
	}

	storeCfg := vectorstore.Config{
		Collection: cfg.Store.Collection,
		VectorSize: cfg.Store.VectorSize,
	}
	cache := conncache.New(cfg.Store.CacheCapacity, cfg.Store.DialTimeout,
		func(ctx context.Context, cred credentials.Credential) (vectorstore.Store, error) {
			return vectorstore.Dial(ctx, cred, storeCfg)
		}, logger)
	defer cache.Close()

	service, err := retrieval.NewService(cache, pipeline, engine, retrieval.Config{
		Root:      cfg.Resources.Root,
		Supported: supported,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing retrieval service: %w", err)
	}

	server, err := mcp.NewServer(service, logger, &mcp.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		EnablePurge: cfg.Admin.EnablePurge,
	})
	if err != nil {
		return fmt.Errorf("initializing mcp server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

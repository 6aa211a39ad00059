package mcp

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/satorihq/satori-index/internal/callgraph"
	"github.com/satorihq/satori-index/internal/capability"
	"github.com/satorihq/satori-index/internal/changedfiles"
	"github.com/satorihq/satori-index/internal/completionproof"
	"github.com/satorihq/satori-index/internal/embedengine"
	"github.com/satorihq/satori-index/internal/indexbuilder"
	"github.com/satorihq/satori-index/internal/langsupport"
	"github.com/satorihq/satori-index/internal/lifecycle"
	"github.com/satorihq/satori-index/internal/readiness"
	"github.com/satorihq/satori-index/internal/reranker"
	"github.com/satorihq/satori-index/internal/retrieval"
	"github.com/satorihq/satori-index/internal/snapshot"
	"github.com/satorihq/satori-index/internal/types"
	"github.com/satorihq/satori-index/internal/vcsprobe"
	"github.com/satorihq/satori-index/internal/vectorstore"
	"github.com/satorihq/satori-index/pkg/config"
)

// Server is the MCP server: the five-tool surface of the query core,
// wired against the readiness gate and its collaborators.
type Server struct {
	config    *config.Config
	mcpServer *server.MCPServer

	snapshotStore  *snapshot.Store
	vectorStore    *vectorstore.Client
	embedClient    *embedengine.Client
	rerankerClient *reranker.Client
	gate           *readiness.Gate
	pipeline       *retrieval.Pipeline
	lifecycleMgr   *lifecycle.Manager
	callgraphStore *callgraph.Store
	changedCache   *changedfiles.Cache
	langSupport    *langsupport.Registry
	caps           capability.Capabilities
	fingerprint    types.IndexFingerprint
}

// NewServer wires every collaborator the tool surface depends on and
// registers the five tools against the MCP server.
func NewServer(cfg *config.Config) (*Server, error) {
	vectorStoreClient, err := vectorstore.NewClient(&cfg.VectorDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store client: %w", err)
	}

	embedClient := embedengine.NewClient(&cfg.Embeddings, vectorStoreClient)
	rerankerClient := reranker.NewClient(&cfg.Reranker)

	snapshotStore, err := snapshot.NewStore(cfg.Snapshot.Directory, cfg.Snapshot.FileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}

	fingerprint := types.IndexFingerprint{
		EmbeddingProvider:   cfg.Embeddings.Provider,
		EmbeddingModel:      cfg.Embeddings.Model,
		EmbeddingDimension:  embedClient.GetDimension(),
		VectorStoreProvider: cfg.VectorDB.Provider,
		SchemaVersion:       cfg.Indexing.SchemaVersion,
	}

	validator := completionproof.NewValidator(vectorStoreClient)
	gate := readiness.NewGate(snapshotStore, validator, fingerprint, cfg.Indexing.WatcherDebounceMS)

	vcsProber := vcsprobe.NewProber()
	changedCache := changedfiles.NewCache(vcsProber, cfg.Search.ChangedFilesCacheTTLMS)

	pipeline := retrieval.NewPipeline(&cfg.Search, &cfg.Reranker, embedClient, rerankerClient, changedCache)

	builder := indexbuilder.NewBuilder(embedClient, vectorStoreClient)
	lifecycleMgr := lifecycle.NewManager(snapshotStore, vectorStoreClient, builder, validator, fingerprint, cfg.Indexing.StaleGraceMS)

	callgraphStore, err := callgraph.NewStore(filepath.Join(cfg.Snapshot.Directory, "callgraph"))
	if err != nil {
		return nil, fmt.Errorf("failed to open call-graph store: %w", err)
	}

	caps := capability.Resolve(&cfg.Embeddings, &cfg.Reranker)
	langReg := langsupport.NewRegistry()

	s := &Server{
		config:         cfg,
		snapshotStore:  snapshotStore,
		vectorStore:    vectorStoreClient,
		embedClient:    embedClient,
		rerankerClient: rerankerClient,
		gate:           gate,
		pipeline:       pipeline,
		lifecycleMgr:   lifecycleMgr,
		callgraphStore: callgraphStore,
		changedCache:   changedCache,
		langSupport:    langReg,
		caps:           caps,
		fingerprint:    fingerprint,
	}

	mcpServer := server.NewMCPServer(cfg.Server.Name, cfg.Server.Version)

	tools := s.getTools()
	for _, tool := range tools {
		mcpServer.AddTool(tool, s.createToolHandler(tool.Name))
	}

	s.mcpServer = mcpServer

	log.Printf("MCP server initialized: %s v%s", cfg.Server.Name, cfg.Server.Version)
	log.Printf("Registered %d tools", len(tools))
	log.Printf("capability resolver: hasReranker=%v profile=%s defaultRerankEnabled=%v", caps.HasReranker, caps.PerformanceProfile, caps.DefaultRerankEnabled)

	return s, nil
}

// createToolHandler creates a handler function for a given tool name
func (s *Server) createToolHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log.Printf("Handling tool call: %s", toolName)

		// Extract and type assert arguments from request
		var args map[string]interface{}
		if request.Params.Arguments != nil {
			var ok bool
			args, ok = request.Params.Arguments.(map[string]interface{})
			if !ok {
				return errorResult("invalid arguments format"), nil
			}
		} else {
			args = make(map[string]interface{})
		}

		// Route to appropriate handler based on tool name
		switch toolName {
		case "manage_index":
			return s.handleManageIndex(ctx, args)
		case "search_codebase":
			return s.handleSearchCodebase(ctx, args)
		case "file_outline":
			return s.handleFileOutline(ctx, args)
		case "call_graph":
			return s.handleCallGraph(ctx, args)
		case "list_codebases":
			return s.handleListCodebases(ctx, args)
		default:
			return errorResult(fmt.Sprintf("unknown tool: %s", toolName)), nil
		}
	}
}

// Start starts the MCP server with stdio transport
func (s *Server) Start(ctx context.Context) error {
	log.Printf("Starting MCP server on stdio transport...")

	// Start the server with stdio transport
	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Close closes the server and releases its vector store connection.
func (s *Server) Close() error {
	log.Printf("Shutting down MCP server...")
	return s.vectorStore.Close()
}

// Fingerprint returns the IndexFingerprint every readiness decision on
// this server is checked against.
func (s *Server) Fingerprint() types.IndexFingerprint {
	return s.fingerprint
}

// Capabilities returns the resolved reranker/performance capability set.
func (s *Server) Capabilities() capability.Capabilities {
	return s.caps
}

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	httpHdlr "smartassist/handler/http"
	"smartassist/src/core/chunker"
	"smartassist/src/core/extract"
	"smartassist/src/core/rag"
	"smartassist/src/core/vectorindex"
	"smartassist/src/infrastructure/integrations/ollama"
	jobctrl "smartassist/src/infrastructure/job"
	"smartassist/src/log"
	"smartassist/src/storage/minioctrl"
	"smartassist/src/storage/postgres/chatctrl"
	"smartassist/src/storage/postgres/chunkctrl"
	"smartassist/src/storage/postgres/documentctrl"
	"smartassist/src/storage/weaviate"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the knowledge-base API server",
	Long: `The serve command starts the HTTP API and an in-process worker that
handles ingestion jobs over an in-memory queue. For distributed deployments
run dedicated workers with the worker command instead.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	if err := db.AutoMigrate(
		&documentctrl.Document{},
		&chunkctrl.Chunk{},
		&chatctrl.ChatMessage{},
		&jobctrl.Job{},
	); err != nil {
		return fmt.Errorf("failed to migrate database schema: %v", err)
	}

	blobService, err := minioctrl.NewBlobService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize blob service: %v", err)
	}
	bucket := viper.GetString("minio.document_bucket")
	if err := blobService.EnsureBucketExists(context.Background(), bucket); err != nil {
		return fmt.Errorf("failed to ensure document bucket: %v", err)
	}

	ollamaClient := ollama.NewClient(ollama.Config{
		BaseURL:       viper.GetString("ollama.url"),
		EmbedModel:    viper.GetString("ollama.embed_model"),
		GenerateModel: viper.GetString("ollama.generate_model"),
		Dimensions:    viper.GetInt("ollama.dimensions"),
	})

	vectorStore, err := buildVectorStore(ollamaClient.Dimensions())
	if err != nil {
		return err
	}

	orchestrator, err := buildOrchestrator(db, blobService, ollamaClient, vectorStore)
	if err != nil {
		return err
	}

	// The in-memory index is empty on every start; rebuild it from persisted
	// chunks before serving. Weaviate keeps its own state across restarts.
	if viper.GetString("rag.vector_backend") == "memory" {
		if err := orchestrator.RestoreIndex(context.Background()); err != nil {
			return fmt.Errorf("failed to restore vector index: %v", err)
		}
	}

	// In-process job queue: publisher and subscriber share one channel.
	logger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, logger)
	defer pubSub.Close()

	ingestTask, err := jobctrl.NewIngestTask(orchestrator)
	if err != nil {
		return fmt.Errorf("failed to initialize ingest task: %v", err)
	}
	jobRepo, err := jobctrl.NewPostgresJobRepository(db)
	if err != nil {
		return fmt.Errorf("failed to initialize job repository: %v", err)
	}
	jobService := jobctrl.NewJobService(pubSub, jobRepo, logger, ingestTask)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)
	router.AddNoPublisherHandler(
		"job_processor",
		jobctrl.JobsTopic,
		pubSub,
		func(msg *message.Message) error {
			return jobService.ProcessJobMessage(msg)
		},
	)

	routerCtx, cancelRouter := context.WithCancel(context.Background())
	defer cancelRouter()
	go func() {
		if err := router.Run(routerCtx); err != nil {
			log.Error(err, "Job router stopped")
		}
	}()

	registry, err := extract.DefaultRegistry()
	if err != nil {
		return fmt.Errorf("failed to initialize extractor registry: %v", err)
	}
	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize document service: %v", err)
	}

	health := []httpHdlr.HealthProbe{
		{
			Name:  "postgres",
			Check: sqlDB.PingContext,
		},
		{
			Name:  "minio",
			Check: blobService.Healthy,
		},
		{
			Name: "ollama",
			Check: func(ctx context.Context) error {
				_, err := ollamaClient.Models(ctx)
				return err
			},
		},
	}

	handler, err := httpHdlr.NewHandler(
		orchestrator,
		documentService,
		registry,
		blobService,
		jobService,
		bucket,
		health,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize http handler: %v", err)
	}

	r := gin.Default()
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "Failed to start server")
		}
	}()
	log.Info("Server started", "port", viper.GetString("server.port"))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout, err := time.ParseDuration(viper.GetString("server.shutdown_timeout"))
	if err != nil {
		log.Error(err, "Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}
	cancelRouter()
	<-router.Running()

	log.Info("Server exited")
	return nil
}

func openDatabase() (*gorm.DB, error) {
	host := viper.GetString("postgres.host")
	user := viper.GetString("postgres.user")
	password := viper.GetString("postgres.password")
	dbname := viper.GetString("postgres.db")
	port := viper.GetString("postgres.port")

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		host, user, password, dbname, port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return db, nil
}

// buildVectorStore picks the configured vector backend: the in-memory index
// for single-process deployments, Weaviate when the index must be shared.
func buildVectorStore(dims int) (vectorindex.Store, error) {
	switch backend := viper.GetString("rag.vector_backend"); backend {
	case "memory":
		index, err := vectorindex.New(dims)
		if err != nil {
			return nil, fmt.Errorf("failed to create vector index: %v", err)
		}
		return index, nil
	case "weaviate":
		wc := weaviateClient.New(weaviateClient.Config{
			Host:   viper.GetString("weaviate.host"),
			Scheme: viper.GetString("weaviate.scheme"),
		})
		store, err := weaviate.NewStore(wc, viper.GetString("weaviate.class_name"), dims)
		if err != nil {
			return nil, fmt.Errorf("failed to create weaviate store: %v", err)
		}
		if err := store.EnsureSchema(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to ensure weaviate schema: %v", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", backend)
	}
}

func buildOrchestrator(
	db *gorm.DB,
	blobService *minioctrl.BlobService,
	ollamaClient *ollama.Client,
	vectorStore vectorindex.Store,
) (*rag.Orchestrator, error) {
	registry, err := extract.DefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize extractor registry: %v", err)
	}

	chunkerSvc, err := chunker.New(chunker.Config{
		MaxChunkChars: viper.GetInt("rag.chunk_size"),
		OverlapChars:  viper.GetInt("rag.chunk_overlap"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunker: %v", err)
	}

	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document service: %v", err)
	}
	chunkService, err := chunkctrl.NewChunkService(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chunk service: %v", err)
	}
	chatService, err := chatctrl.NewChatService(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat service: %v", err)
	}

	orchestrator, err := rag.New(rag.Deps{
		Extractors: registry,
		Chunker:    chunkerSvc,
		Embedder:   ollamaClient,
		Generator:  ollamaClient,
		Index:      vectorStore,
		Documents:  documentService,
		Chunks:     chunkService,
		Blobs:      blobService,
		Chats:      chatService,
	}, rag.Config{
		TopK:            viper.GetInt("rag.top_k"),
		MaxContextChars: viper.GetInt("rag.max_context_chars"),
		EmbedMaxRetries: viper.GetInt("rag.embed_max_retries"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orchestrator: %v", err)
	}
	return orchestrator, nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"smartassist/src/infrastructure/integrations/ollama"
	jobctrl "smartassist/src/infrastructure/job"
	"smartassist/src/log"
	"smartassist/src/storage/minioctrl"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background ingestion worker",
	Long: `The worker command consumes ingestion jobs from RabbitMQ. It requires
the weaviate vector backend, since an in-memory index in the worker process
would be invisible to the API server.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	if backend := viper.GetString("rag.vector_backend"); backend != "weaviate" {
		return fmt.Errorf("worker requires the weaviate vector backend, got %q", backend)
	}

	// Initialize logger
	logger := watermill.NewStdLogger(false, false)

	db, err := openDatabase()
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying *sql.DB: %v", err)
	}
	defer sqlDB.Close()

	// Initialize AMQP publisher
	amqpPublisher, err := amqp.NewPublisher(
		amqp.NewDurableQueueConfig(viper.GetString("amqp.url")),
		logger,
	)
	if err != nil {
		return err
	}
	defer amqpPublisher.Close()

	// Initialize AMQP subscriber
	subscriberConfig := amqp.NewDurableQueueConfig(viper.GetString("amqp.url"))
	subscriberConfig.Consume.NoRequeueOnNack = true
	amqpSubscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		return err
	}
	defer amqpSubscriber.Close()

	// Initialize router
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return err
	}

	// Add middleware
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.CorrelationID,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: time.Second,
			Logger:          logger,
		}.Middleware,
	)

	blobService, err := minioctrl.NewBlobService(
		viper.GetString("minio.endpoint"),
		viper.GetString("minio.access_key"),
		viper.GetString("minio.secret_key"),
		viper.GetBool("minio.use_ssl"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize blob service: %v", err)
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

	ingestTask, err := jobctrl.NewIngestTask(orchestrator)
	if err != nil {
		return fmt.Errorf("failed to initialize ingest task: %v", err)
	}

	// Initialize job repository and service
	jobRepo, err := jobctrl.NewPostgresJobRepository(db)
	if err != nil {
		return fmt.Errorf("failed to initialize job repository: %v", err)
	}
	jobService := jobctrl.NewJobService(amqpPublisher, jobRepo, logger, ingestTask)

	// Add handler for processing jobs
	router.AddNoPublisherHandler(
		"job_processor",
		jobctrl.JobsTopic,
		amqpSubscriber,
		func(msg *message.Message) error {
			return jobService.ProcessJobMessage(msg)
		},
	)

	// Run the router
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := router.Run(ctx); err != nil {
			log.Error(err, "Job router stopped")
		}
	}()
	log.Info("Worker started")

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	log.Info("Shutting down...")
	cancel()
	<-router.Running()
	log.Info("Router stopped")

	return nil
}

package cmd

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"smartassist/src/core/extract"
	"smartassist/src/core/rag"
	"smartassist/src/infrastructure/integrations/ollama"
	jobctrl "smartassist/src/infrastructure/job"
	"smartassist/src/log"
	"smartassist/src/storage/minioctrl"
	"smartassist/src/storage/postgres/chatctrl"
	"smartassist/src/storage/postgres/chunkctrl"
	"smartassist/src/storage/postgres/documentctrl"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <directory>",
	Short: "Bulk-ingest documents from a directory",
	Long: `The ingest command walks a directory, uploads every supported file and
runs the full ingestion pipeline synchronously. Useful for seeding a fresh
knowledge base.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	root := args[0]
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to stat %q: %v", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", root)
	}

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
	ctx := context.Background()
	if err := blobService.EnsureBucketExists(ctx, bucket); err != nil {
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

	registry, err := extract.DefaultRegistry()
	if err != nil {
		return fmt.Errorf("failed to initialize extractor registry: %v", err)
	}
	documentService, err := documentctrl.NewDocumentService(db)
	if err != nil {
		return fmt.Errorf("failed to initialize document service: %v", err)
	}

	// Collect supported files first so the progress bar has a total.
	var files []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if registry.Supported(mime.TypeByExtension(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %q: %v", root, err)
	}
	if len(files) == 0 {
		fmt.Println("no supported documents found")
		return nil
	}

	bar := progressbar.Default(int64(len(files)), "ingesting")
	failed := 0
	for _, path := range files {
		if err := ingestFile(ctx, path, bucket, blobService, documentService, orchestrator); err != nil {
			failed++
			log.Error(err, "failed to ingest file", "path", path)
		}
		bar.Add(1)
	}

	fmt.Printf("ingested %d documents, %d failed\n", len(files)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d documents failed to ingest", failed)
	}
	return nil
}

func ingestFile(
	ctx context.Context,
	path string,
	bucket string,
	blobService *minioctrl.BlobService,
	documentService *documentctrl.DocumentService,
	orchestrator *rag.Orchestrator,
) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %q: %v", path, err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	fileName := filepath.Base(path)

	blobURL, err := blobService.Put(ctx, bucket, fileName, contentType, data)
	if err != nil {
		return fmt.Errorf("failed to upload %q: %v", path, err)
	}

	doc := &rag.Document{
		FileName:    fileName,
		Title:       strings.TrimSuffix(fileName, filepath.Ext(fileName)),
		ContentType: contentType,
		BlobURL:     blobURL,
		Status:      rag.StatusPending,
	}
	if err := documentService.Create(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document record for %q: %v", path, err)
	}

	return orchestrator.Ingest(ctx, doc.ID)
}

package job

import (
	"context"
	"encoding/json"
	"fmt"

	"smartassist/src/core/rag"
)

// IngestTask runs document ingestion for queued jobs.
type IngestTask struct {
	orchestrator *rag.Orchestrator
}

func NewIngestTask(orchestrator *rag.Orchestrator) (*IngestTask, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	return &IngestTask{orchestrator: orchestrator}, nil
}

func (t *IngestTask) Process(ctx context.Context, payload json.RawMessage) error {
	var p IngestPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal ingest payload: %w", err)
	}
	if p.DocumentID == 0 {
		return fmt.Errorf("ingest payload missing document id")
	}

	if err := t.orchestrator.Ingest(ctx, p.DocumentID); err != nil {
		return fmt.Errorf("failed to ingest document %d: %w", p.DocumentID, err)
	}
	return nil
}

package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantfold/kalshibot/internal/domain"
)

// RunArchiver persists the artifacts of a single analysis run to blob
// storage: the prompt sent to the model, the raw model response, and a JSON
// outcome record. Failures here never block trading; callers treat uploads
// as best effort.
type RunArchiver struct {
	writer domain.BlobWriter
}

// NewRunArchiver creates a RunArchiver on top of the given BlobWriter.
func NewRunArchiver(writer domain.BlobWriter) *RunArchiver {
	return &RunArchiver{writer: writer}
}

// RunOutcome is the JSON record written at the end of each run.
type RunOutcome struct {
	RunID         string           `json:"run_id"`
	Mode          string           `json:"mode"`
	PromptVersion string           `json:"prompt_version"`
	Candidates    int              `json:"candidates"`
	Decision      *domain.Decision `json:"decision,omitempty"`
	Bet           *domain.Bet      `json:"bet,omitempty"`
	Code          string           `json:"code"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    time.Time        `json:"finished_at"`
}

// ArchivePrompt uploads the rendered prompt for a run.
func (a *RunArchiver) ArchivePrompt(ctx context.Context, runID string, at time.Time, prompt string) error {
	path := runPath(runID, at, "prompt.md")
	if err := a.writer.Put(ctx, path, bytes.NewReader([]byte(prompt)), "text/markdown"); err != nil {
		return fmt.Errorf("s3blob: archive prompt: %w", err)
	}
	return nil
}

// ArchiveResponse uploads the raw model output for a run.
func (a *RunArchiver) ArchiveResponse(ctx context.Context, runID string, at time.Time, response string) error {
	path := runPath(runID, at, "response.txt")
	if err := a.writer.Put(ctx, path, bytes.NewReader([]byte(response)), "text/plain"); err != nil {
		return fmt.Errorf("s3blob: archive response: %w", err)
	}
	return nil
}

// ArchiveOutcome uploads the JSON outcome record for a run.
func (a *RunArchiver) ArchiveOutcome(ctx context.Context, runID string, at time.Time, outcome RunOutcome) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(outcome); err != nil {
		return fmt.Errorf("s3blob: marshal outcome: %w", err)
	}

	path := runPath(runID, at, "outcome.json")
	if err := a.writer.Put(ctx, path, &buf, "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive outcome: %w", err)
	}
	return nil
}

// runPath builds the S3 key for a run artifact, partitioned by date.
//
//	runs/2026/08/29/{runID}/prompt.md
func runPath(runID string, at time.Time, name string) string {
	return fmt.Sprintf("runs/%s/%s/%s", at.UTC().Format("2006/01/02"), runID, name)
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"objection-engine/internal/common/database"
	"objection-engine/internal/models"
)

type DraftStore struct {
	db *database.PostgresClient
}

func NewDraftStore(db *database.PostgresClient) *DraftStore {
	return &DraftStore{db: db}
}

// Append records one generation attempt. Rows are never updated or
// deleted; regenerations and manual edits each add a row.
func (s *DraftStore) Append(ctx context.Context, draft *models.GeneratedDraft) error {
	if draft.ID == "" {
		draft.ID = uuid.New().String()
	}
	draft.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(ctx, `
		INSERT INTO generated_drafts (id, submission_id, provider, model, temperature,
			prompt_version, prompt_tokens, completion_tokens, output_text, input_summary, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		draft.ID, draft.SubmissionID, draft.Provider, draft.Model, draft.Temperature,
		draft.PromptVersion, draft.PromptTokens, draft.CompletionTokens,
		draft.OutputText, draft.InputSummary, draft.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append generated draft: %w", err)
	}
	return nil
}

// Latest returns the most recent draft for a submission, or nil.
func (s *DraftStore) Latest(ctx context.Context, submissionID string) (*models.GeneratedDraft, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, submission_id, provider, model, temperature, prompt_version,
			prompt_tokens, completion_tokens, output_text, input_summary, created_at
		FROM generated_drafts WHERE submission_id = $1
		ORDER BY created_at DESC LIMIT 1`, submissionID)

	var draft models.GeneratedDraft
	var model, promptVersion, inputSummary sql.NullString
	err := row.Scan(
		&draft.ID, &draft.SubmissionID, &draft.Provider, &model, &draft.Temperature,
		&promptVersion, &draft.PromptTokens, &draft.CompletionTokens,
		&draft.OutputText, &inputSummary, &draft.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan generated draft: %w", err)
	}
	draft.Model = model.String
	draft.PromptVersion = promptVersion.String
	draft.InputSummary = inputSummary.String
	return &draft, nil
}

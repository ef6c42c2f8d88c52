package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"objection-engine/internal/common/database"
	"objection-engine/internal/models"
)

type SurveyStore struct {
	db *database.PostgresClient
}

func NewSurveyStore(db *database.PostgresClient) *SurveyStore {
	return &SurveyStore{db: db}
}

// Append records a concern selection. The table is append-only; a
// resubmission creates a new row rather than editing the old one.
func (s *SurveyStore) Append(ctx context.Context, resp *models.SurveyResponse) error {
	if resp.ID == "" {
		resp.ID = uuid.New().String()
	}
	resp.CreatedAt = time.Now().UTC()

	keys, err := json.Marshal(resp.ConcernKeys)
	if err != nil {
		return fmt.Errorf("marshal concern keys: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO survey_responses (id, submission_id, concern_keys, style_sample,
			custom_grounds, track, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		resp.ID, resp.SubmissionID, keys, resp.StyleSample, resp.CustomGrounds,
		resp.Track, resp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append survey response: %w", err)
	}
	return nil
}

// Latest returns the newest concern selection for a submission, or nil.
func (s *SurveyStore) Latest(ctx context.Context, submissionID string) (*models.SurveyResponse, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, submission_id, concern_keys, style_sample, custom_grounds, track, created_at
		FROM survey_responses WHERE submission_id = $1
		ORDER BY created_at DESC LIMIT 1`, submissionID)

	var resp models.SurveyResponse
	var keys []byte
	var style, custom sql.NullString
	err := row.Scan(&resp.ID, &resp.SubmissionID, &keys, &style, &custom, &resp.Track, &resp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan survey response: %w", err)
	}
	if err := json.Unmarshal(keys, &resp.ConcernKeys); err != nil {
		return nil, fmt.Errorf("unmarshal concern keys: %w", err)
	}
	resp.StyleSample = style.String
	resp.CustomGrounds = custom.String
	return &resp, nil
}

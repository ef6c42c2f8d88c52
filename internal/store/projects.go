package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"objection-engine/internal/common/database"
	"objection-engine/internal/models"
)

// ProjectStore reads project configuration. The admin CRUD surface that
// writes these rows lives outside this service.
type ProjectStore struct {
	db *database.PostgresClient
}

func NewProjectStore(db *database.PostgresClient) *ProjectStore {
	return &ProjectStore{db: db}
}

// Get loads one project configuration, or nil when unknown. The config
// column is a jsonb document so template edits never need a migration.
func (s *ProjectStore) Get(ctx context.Context, projectID string) (*models.ProjectConfig, error) {
	var raw []byte
	err := s.db.QueryRow(ctx, `SELECT config FROM projects WHERE id = $1`, projectID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query project config: %w", err)
	}

	var cfg models.ProjectConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal project config: %w", err)
	}
	cfg.ProjectID = projectID
	return &cfg, nil
}

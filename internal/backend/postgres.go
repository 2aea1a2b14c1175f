package backend

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-pathways/internal/curriculum"
)

const dbTimeout = 5 * time.Second

//go:embed schema.sql
var schemaSQL string

// PostgresBackend is a PostgreSQL-backed Backend implementation.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend creates a backend on an existing pool.
func NewPostgresBackend(pool *pgxpool.Pool) (*PostgresBackend, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresBackend{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (b *PostgresBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// SeedPath inserts a path and its subtopics unless a path with the same ID
// already exists. It reports whether the path was inserted.
func (b *PostgresBackend) SeedPath(ctx context.Context, p curriculum.LearningPath) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cmd, err := tx.Exec(ctx,
		`INSERT INTO learning_paths (id, topic, level, overview, roadmap, estimated_hours, progress)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Topic, p.Level, p.Overview, p.Roadmap, p.EstimatedHours, p.Progress,
	)
	if err != nil {
		return false, fmt.Errorf("insert path: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return false, nil
	}

	for i, s := range p.Subtopics {
		if _, err := tx.Exec(ctx,
			`INSERT INTO subtopics (path_id, position, name, explanation) VALUES ($1, $2, $3, $4)`,
			p.ID, curriculum.SubtopicID(i), s.Name, s.Explanation,
		); err != nil {
			return false, fmt.Errorf("insert subtopic %d: %w", i, err)
		}
	}
	if err := insertCompleted(ctx, tx, p.ID, p.CompletedSubtopics); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit seed: %w", err)
	}
	return true, nil
}

func (b *PostgresBackend) FetchPath(ctx context.Context, pathID string) (curriculum.LearningPath, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var p curriculum.LearningPath
	err := b.pool.QueryRow(ctx,
		`SELECT id, topic, level, overview, roadmap, estimated_hours, progress
		 FROM learning_paths WHERE id = $1`,
		pathID,
	).Scan(&p.ID, &p.Topic, &p.Level, &p.Overview, &p.Roadmap, &p.EstimatedHours, &p.Progress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, fmt.Errorf("%w: %s", curriculum.ErrPathNotFound, pathID)
		}
		return p, fmt.Errorf("get path: %w", err)
	}

	rows, err := b.pool.Query(ctx,
		`SELECT name, explanation FROM subtopics WHERE path_id = $1 ORDER BY position ASC`,
		pathID,
	)
	if err != nil {
		return p, fmt.Errorf("query subtopics: %w", err)
	}
	p.Subtopics, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (curriculum.Subtopic, error) {
		var s curriculum.Subtopic
		err := row.Scan(&s.Name, &s.Explanation)
		return s, err
	})
	if err != nil {
		return p, fmt.Errorf("scan subtopics: %w", err)
	}

	rows, err = b.pool.Query(ctx,
		`SELECT subtopic_name FROM completed_subtopics WHERE path_id = $1 ORDER BY ordinal ASC`,
		pathID,
	)
	if err != nil {
		return p, fmt.Errorf("query completed subtopics: %w", err)
	}
	p.CompletedSubtopics, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return p, fmt.Errorf("scan completed subtopics: %w", err)
	}

	return p, nil
}

func (b *PostgresBackend) FetchResources(ctx context.Context, pathID string, subtopicID int) ([]curriculum.Resource, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := b.checkSubtopic(ctx, pathID, subtopicID); err != nil {
		return nil, err
	}

	rows, err := b.pool.Query(ctx,
		`SELECT id, kind, COALESCE(title, ''), content, COALESCE(url, ''), COALESCE(language, '')
		 FROM resources
		 WHERE path_id = $1 AND position = $2
		 ORDER BY id ASC`,
		pathID, subtopicID,
	)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	resources, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (curriculum.Resource, error) {
		var r curriculum.Resource
		var kind string
		err := row.Scan(&r.ID, &kind, &r.Title, &r.Content, &r.URL, &r.Language)
		r.Kind = curriculum.ResourceKind(kind)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan resources: %w", err)
	}
	if resources == nil {
		resources = []curriculum.Resource{}
	}
	return resources, nil
}

func (b *PostgresBackend) SubmitResource(ctx context.Context, pathID string, subtopicID int, res curriculum.Resource) (curriculum.Resource, error) {
	if err := validateSubmission(res); err != nil {
		return curriculum.Resource{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := b.checkSubtopic(ctx, pathID, subtopicID); err != nil {
		return curriculum.Resource{}, err
	}

	err := b.pool.QueryRow(ctx,
		`INSERT INTO resources (path_id, position, kind, title, content, url, language)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		pathID,
		subtopicID,
		string(res.Kind),
		nullIfEmpty(res.Title),
		res.Content,
		nullIfEmpty(res.URL),
		nullIfEmpty(res.Language),
	).Scan(&res.ID)
	if err != nil {
		return curriculum.Resource{}, fmt.Errorf("insert resource: %w", err)
	}
	return res, nil
}

func (b *PostgresBackend) PersistProgress(ctx context.Context, pathID string, update curriculum.ProgressUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin progress update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cmd, err := tx.Exec(ctx,
		`UPDATE learning_paths SET progress = $2, last_updated = NOW() WHERE id = $1`,
		pathID, update.Progress,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", curriculum.ErrPathNotFound, pathID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM completed_subtopics WHERE path_id = $1`, pathID); err != nil {
		return fmt.Errorf("clear completed subtopics: %w", err)
	}
	if err := insertCompleted(ctx, tx, pathID, update.CompletedSubtopics); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit progress update: %w", err)
	}
	return nil
}

func (b *PostgresBackend) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("upload is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	name := uploadName(filename, data)
	if _, err := b.pool.Exec(ctx,
		`INSERT INTO uploads (name, data) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, data,
	); err != nil {
		return "", fmt.Errorf("insert upload: %w", err)
	}
	return UploadPrefix + name, nil
}

func (b *PostgresBackend) ReadUpload(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := b.pool.QueryRow(ctx, `SELECT data FROM uploads WHERE name = $1`, name).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, name)
		}
		return nil, fmt.Errorf("get upload: %w", err)
	}
	return data, nil
}

func (b *PostgresBackend) checkSubtopic(ctx context.Context, pathID string, subtopicID int) error {
	var pathExists, subtopicExists bool
	err := b.pool.QueryRow(ctx,
		`SELECT
		   EXISTS (SELECT 1 FROM learning_paths WHERE id = $1),
		   EXISTS (SELECT 1 FROM subtopics WHERE path_id = $1 AND position = $2)`,
		pathID, subtopicID,
	).Scan(&pathExists, &subtopicExists)
	if err != nil {
		return fmt.Errorf("check subtopic: %w", err)
	}
	if !pathExists {
		return fmt.Errorf("%w: %s", curriculum.ErrPathNotFound, pathID)
	}
	if !subtopicExists {
		return fmt.Errorf("%w: %d", curriculum.ErrSubtopicNotFound, subtopicID)
	}
	return nil
}

func insertCompleted(ctx context.Context, tx pgx.Tx, pathID string, names []string) error {
	for i, name := range names {
		if _, err := tx.Exec(ctx,
			`INSERT INTO completed_subtopics (path_id, subtopic_name, ordinal)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (path_id, subtopic_name) DO NOTHING`,
			pathID, name, i,
		); err != nil {
			return fmt.Errorf("insert completed subtopic: %w", err)
		}
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/alvares777-IA/cameras-arcos/internal/config"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// visitorLockKey serializes visitor numbering across processes.
const visitorLockKey int64 = 0x56495349544f52

// DB is the subset of pgxpool.Pool used by the store; pgxmock satisfies it too.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type PostgresStore struct {
	db DB

	// visitorMu serializes allocation inside this process; the advisory
	// lock covers other processes sharing the database.
	visitorMu sync.Mutex
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{db: pool}, nil
}

// NewPostgresStoreWithDB wraps an existing connection (pool or mock).
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// --- Cameras ---

const cameraColumns = `id, name, rtsp_url, enabled, continuous, hour_start, hour_end,
	width, height, COALESCE(codec, ''), fps, created_at, updated_at`

func scanCamera(row pgx.Row) (*models.Camera, error) {
	c := &models.Camera{}
	err := row.Scan(&c.ID, &c.Name, &c.RTSPURL, &c.Enabled, &c.Continuous, &c.HourStart, &c.HourEnd,
		&c.Width, &c.Height, &c.Codec, &c.FPS, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) GetCamera(ctx context.Context, id int64) (*models.Camera, error) {
	c, err := scanCamera(s.db.QueryRow(ctx,
		`SELECT `+cameraColumns+` FROM cameras WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get camera: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCameras(ctx context.Context) ([]models.Camera, error) {
	return s.listCameras(ctx, `SELECT `+cameraColumns+` FROM cameras ORDER BY id`)
}

func (s *PostgresStore) ListEnabledCameras(ctx context.Context) ([]models.Camera, error) {
	return s.listCameras(ctx, `SELECT `+cameraColumns+` FROM cameras WHERE enabled ORDER BY id`)
}

func (s *PostgresStore) listCameras(ctx context.Context, query string) ([]models.Camera, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cameras []models.Camera
	for rows.Next() {
		c, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("scan camera: %w", err)
		}
		cameras = append(cameras, *c)
	}
	return cameras, rows.Err()
}

// UpdateCameraProbe stores the stream characteristics reported by ffprobe.
func (s *PostgresStore) UpdateCameraProbe(ctx context.Context, id int64, width, height int, codec string, fps float64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE cameras SET width = $2, height = $3, codec = $4, fps = $5, updated_at = NOW() WHERE id = $1`,
		id, width, height, codec, fps)
	if err != nil {
		return fmt.Errorf("update camera probe: %w", err)
	}
	return nil
}

// --- Recordings ---

// CreateRecording persists a finalized segment and fills in its id.
func (s *PostgresStore) CreateRecording(ctx context.Context, r *models.Recording) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO recordings (camera_id, path, started_at, ended_at, size_bytes, face_analyzed)
		 VALUES ($1, $2, $3, $4, $5, FALSE) RETURNING id, created_at`,
		r.CameraID, r.Path, r.StartedAt, r.EndedAt, r.SizeBytes,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkRecordingAnalyzed(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `UPDATE recordings SET face_analyzed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark recording analyzed: %w", err)
	}
	return nil
}

const recordingColumns = `id, camera_id, path, started_at, ended_at, size_bytes, face_analyzed, created_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	r := &models.Recording{}
	if err := row.Scan(&r.ID, &r.CameraID, &r.Path, &r.StartedAt, &r.EndedAt, &r.SizeBytes, &r.FaceAnalyzed, &r.CreatedAt); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) GetRecording(ctx context.Context, id int64) (*models.Recording, error) {
	r, err := scanRecording(s.db.QueryRow(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get recording: %w", err)
	}
	return r, nil
}

// ListRecordings pages recordings newest first, optionally for one camera.
func (s *PostgresStore) ListRecordings(ctx context.Context, cameraID *int64, limit, offset int) ([]models.Recording, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + recordingColumns + ` FROM recordings`
	args := []any{limit, offset}
	if cameraID != nil {
		query += ` WHERE camera_id = $3`
		args = append(args, *cameraID)
	}
	query += ` ORDER BY started_at DESC LIMIT $1 OFFSET $2`

	return s.queryRecordings(ctx, "list recordings", query, args...)
}

// ListRecordingsEndedBefore returns recordings whose end time precedes cutoff.
func (s *PostgresStore) ListRecordingsEndedBefore(ctx context.Context, cutoff time.Time) ([]models.Recording, error) {
	return s.queryRecordings(ctx, "list expired recordings",
		`SELECT `+recordingColumns+` FROM recordings WHERE ended_at < $1 ORDER BY ended_at`, cutoff)
}

func (s *PostgresStore) queryRecordings(ctx context.Context, op, query string, args ...any) ([]models.Recording, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var recs []models.Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recording: %w", err)
		}
		recs = append(recs, *r)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) DeleteRecording(ctx context.Context, id int64) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	return nil
}

// --- Identities ---

func (s *PostgresStore) GetIdentity(ctx context.Context, id int64) (*models.Identity, error) {
	p := &models.Identity{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, kind, created_at, updated_at FROM identities WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Kind, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, kind, created_at, updated_at FROM identities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []models.Identity
	for rows.Next() {
		var p models.Identity
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteIdentity removes the identity; recognitions cascade.
func (s *PostgresStore) DeleteIdentity(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity %d not found", id)
	}
	return nil
}

// CreateVisitor allocates the next "VISITOR N" name (max existing + 1) and
// inserts the identity. Allocation is serialized so concurrent enrollments
// never share a number.
func (s *PostgresStore) CreateVisitor(ctx context.Context) (*models.Identity, error) {
	s.visitorMu.Lock()
	defer s.visitorMu.Unlock()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin visitor tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, visitorLockKey); err != nil {
		return nil, fmt.Errorf("lock visitor numbering: %w", err)
	}

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(CAST(SUBSTRING(name FROM '^VISITOR ([0-9]+)$') AS INTEGER)), 0) + 1
		 FROM identities WHERE name LIKE 'VISITOR %'`,
	).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("next visitor number: %w", err)
	}

	p := &models.Identity{
		Name: fmt.Sprintf("%s%d", models.VisitorPrefix, next),
		Kind: models.IdentityKindVisitor,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO identities (name, kind) VALUES ($1, $2) RETURNING id, created_at, updated_at`,
		p.Name, p.Kind,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert visitor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit visitor: %w", err)
	}
	committed = true
	return p, nil
}

// --- Recognitions ---

func (s *PostgresStore) CreateRecognition(ctx context.Context, r *models.Recognition) error {
	var vec *pgvector.Vector
	if len(r.Embedding) > 0 {
		v := pgvector.NewVector(r.Embedding)
		vec = &v
	}
	if r.DetectedAt.IsZero() {
		r.DetectedAt = time.Now()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO recognitions (identity_id, camera_id, recording_id, distance, embedding, detected_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		r.IdentityID, r.CameraID, r.RecordingID, r.Distance, vec, r.DetectedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("create recognition: %w", err)
	}
	return nil
}

// RecognitionView is a recognition joined with display names.
type RecognitionView struct {
	models.Recognition
	IdentityName string `json:"identity_name"`
	CameraName   string `json:"camera_name"`
}

const recognitionViewQuery = `
	SELECT r.id, r.identity_id, r.camera_id, r.recording_id, r.distance, r.detected_at,
	       i.name, COALESCE(c.name, '')
	FROM recognitions r
	JOIN identities i ON i.id = r.identity_id
	LEFT JOIN cameras c ON c.id = r.camera_id`

func (s *PostgresStore) ListRecognitionsByIdentity(ctx context.Context, identityID int64, limit int) ([]RecognitionView, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.queryRecognitions(ctx,
		recognitionViewQuery+` WHERE r.identity_id = $1 ORDER BY r.detected_at DESC LIMIT $2`,
		identityID, limit)
}

func (s *PostgresStore) RecentRecognitions(ctx context.Context, limit int) ([]RecognitionView, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.queryRecognitions(ctx,
		recognitionViewQuery+` ORDER BY r.detected_at DESC LIMIT $1`, limit)
}

// SimilarRecognitions returns recognitions whose stored embedding is
// nearest (L2) to the embedding of the given recognition.
func (s *PostgresStore) SimilarRecognitions(ctx context.Context, id int64, limit int) ([]RecognitionView, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var ref pgvector.Vector
	err := s.db.QueryRow(ctx,
		`SELECT embedding FROM recognitions WHERE id = $1 AND embedding IS NOT NULL`, id,
	).Scan(&ref)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load reference embedding: %w", err)
	}

	return s.queryRecognitions(ctx,
		recognitionViewQuery+` WHERE r.id <> $1 AND r.embedding IS NOT NULL
		 ORDER BY r.embedding <-> $2 LIMIT $3`,
		id, ref, limit)
}

func (s *PostgresStore) queryRecognitions(ctx context.Context, query string, args ...any) ([]RecognitionView, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recognitions: %w", err)
	}
	defer rows.Close()

	out := []RecognitionView{}
	for rows.Next() {
		var v RecognitionView
		if err := rows.Scan(&v.ID, &v.IdentityID, &v.CameraID, &v.RecordingID, &v.Distance, &v.DetectedAt,
			&v.IdentityName, &v.CameraName); err != nil {
			return nil, fmt.Errorf("scan recognition: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

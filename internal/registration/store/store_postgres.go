package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"voltgrid/internal/registration/models"
	vermodels "voltgrid/internal/versions/models"
	"voltgrid/pkg/domain"
	"voltgrid/pkg/platform/sentinel"
	"voltgrid/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

const recordColumns = `id, country_code, party_id, role, status, local_credentials, remote_credentials,
	negotiated_version, negotiated_endpoints, created_at, last_updated, revision`

// PostgresStore persists registration records in PostgreSQL.
// Commit is a SELECT ... FOR UPDATE followed by a conditional write inside one
// transaction; all transition rules stay in models.ValidateCommit.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the registration tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply registration schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, identity domain.PartyIdentity) (*models.Record, error) {
	q := tx.QuerierFrom(ctx, s.db)
	rec, err := scanRecord(q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM ocpi_registrations WHERE identity_key = $1`, identity.Key()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("registration %s: %w", identity, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindByRemoteToken(ctx context.Context, token string) (*models.Record, error) {
	if token == "" {
		return nil, fmt.Errorf("registration by token: %w", sentinel.ErrNotFound)
	}
	q := tx.QuerierFrom(ctx, s.db)
	rec, err := scanRecord(q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM ocpi_registrations WHERE remote_token = $1 AND status = $2`,
		token, string(models.StatusRegistered)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("registration by token: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find registration by token: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) History(ctx context.Context, identity domain.PartyIdentity) ([]*models.Record, error) {
	return s.query(ctx,
		`SELECT `+recordColumns+` FROM ocpi_registration_history WHERE identity_key = $1 ORDER BY archived_at, created_at`,
		identity.Key())
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Record, error) {
	return s.query(ctx, `SELECT `+recordColumns+` FROM ocpi_registrations ORDER BY identity_key`)
}

// ListByModule returns Registered records that negotiated the given module.
func (s *PostgresStore) ListByModule(ctx context.Context, module vermodels.ModuleID) ([]*models.Record, error) {
	return s.query(ctx,
		`SELECT `+recordColumns+` FROM ocpi_registrations WHERE status = $1 AND module_ids @> $2::text[] ORDER BY identity_key`,
		string(models.StatusRegistered), pq.Array([]string{string(module)}))
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Record, error) {
	q := tx.QuerierFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registrations: %w", err)
	}
	return out, nil
}

// Commit stores rec if the current status equals expected and rec was read
// at the stored revision. On success rec.Revision holds the committed revision.
func (s *PostgresStore) Commit(ctx context.Context, rec *models.Record, expected models.Status) error {
	if rec == nil {
		return models.ValidateCommit(nil, nil)
	}
	var revision int64
	err := tx.RunInTx(ctx, s.db, nil, func(ctx context.Context) error {
		q := tx.QuerierFrom(ctx, s.db)
		key := rec.Identity.Key()

		stored, err := scanRecord(q.QueryRowContext(ctx,
			`SELECT `+recordColumns+` FROM ocpi_registrations WHERE identity_key = $1 FOR UPDATE`, key))
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock registration: %w", err)
		}
		current := models.StatusUnregistered
		if stored != nil {
			current = stored.Status
		}
		if current != expected {
			return fmt.Errorf("registration %s is %s, expected %s: %w", key, current, expected, sentinel.ErrConflict)
		}
		if models.Stale(stored, rec) {
			return fmt.Errorf("registration %s is at revision %d, read at %d: %w", key, stored.Revision, rec.Revision, sentinel.ErrConflict)
		}
		if err := models.ValidateCommit(stored, rec); err != nil {
			return err
		}

		revision = models.NextRevision(stored)
		args, err := recordArgs(rec, revision)
		if err != nil {
			return err
		}

		if stored == nil {
			res, err := q.ExecContext(ctx, `
				INSERT INTO ocpi_registrations (identity_key, id, country_code, party_id, role, status, remote_token,
					local_credentials, remote_credentials, negotiated_version, negotiated_endpoints, module_ids,
					created_at, last_updated, revision)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
				ON CONFLICT (identity_key) DO NOTHING`, args...)
			return requireOneRow(res, err, key)
		}

		if stored.ID != rec.ID {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO ocpi_registration_history (id, identity_key, country_code, party_id, role, status, remote_token,
					local_credentials, remote_credentials, negotiated_version, negotiated_endpoints, module_ids,
					created_at, last_updated, revision)
				SELECT id, identity_key, country_code, party_id, role, status, remote_token,
					local_credentials, remote_credentials, negotiated_version, negotiated_endpoints, module_ids,
					created_at, last_updated, revision
				FROM ocpi_registrations WHERE identity_key = $1`, key); err != nil {
				return fmt.Errorf("archive registration: %w", err)
			}
		}

		res, err := q.ExecContext(ctx, `
			UPDATE ocpi_registrations SET
				id = $2, country_code = $3, party_id = $4, role = $5, status = $6, remote_token = $7,
				local_credentials = $8, remote_credentials = $9, negotiated_version = $10,
				negotiated_endpoints = $11, module_ids = $12, created_at = $13, last_updated = $14,
				revision = $15
			WHERE identity_key = $1 AND status = $16 AND revision = $17`,
			append(args, string(expected), stored.Revision)...)
		return requireOneRow(res, err, key)
	})
	if isUniqueViolation(err) {
		return fmt.Errorf("commit registration %s: %w", rec.Identity, sentinel.ErrConflict)
	}
	if err != nil {
		return err
	}
	rec.Revision = revision
	return nil
}

func recordArgs(rec *models.Record, revision int64) ([]any, error) {
	local, err := json.Marshal(rec.LocalCredentials)
	if err != nil {
		return nil, fmt.Errorf("encode local credentials: %w", err)
	}
	remote, err := json.Marshal(rec.RemoteCredentials)
	if err != nil {
		return nil, fmt.Errorf("encode remote credentials: %w", err)
	}
	endpoints := rec.NegotiatedEndpoints
	if endpoints == nil {
		endpoints = []vermodels.EndpointCapability{}
	}
	eps, err := json.Marshal(endpoints)
	if err != nil {
		return nil, fmt.Errorf("encode endpoints: %w", err)
	}
	modules := make([]string, 0, len(endpoints))
	for _, id := range vermodels.Identifiers(endpoints) {
		modules = append(modules, string(id))
	}
	return []any{
		rec.Identity.Key(),
		uuid.UUID(rec.ID),
		rec.Identity.CountryCode,
		rec.Identity.PartyID,
		string(rec.Identity.Role),
		string(rec.Status),
		rec.RemoteCredentials.Token,
		local,
		remote,
		string(rec.NegotiatedVersion),
		eps,
		pq.Array(modules),
		rec.CreatedAt,
		rec.LastUpdated,
		revision,
	}, nil
}

func requireOneRow(res sql.Result, err error, key string) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("registration %s changed concurrently: %w", key, sentinel.ErrConflict)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		rec                      models.Record
		id                       uuid.UUID
		country, party, role     string
		status, version          string
		local, remote, endpoints []byte
	)
	if err := row.Scan(&id, &country, &party, &role, &status, &local, &remote,
		&version, &endpoints, &rec.CreatedAt, &rec.LastUpdated, &rec.Revision); err != nil {
		return nil, err
	}
	rec.ID = domain.RecordID(id)
	rec.Identity = domain.PartyIdentity{CountryCode: country, PartyID: party, Role: domain.Role(role)}
	rec.Status = models.Status(status)
	rec.NegotiatedVersion = domain.VersionNumber(version)
	if err := json.Unmarshal(local, &rec.LocalCredentials); err != nil {
		return nil, fmt.Errorf("decode local credentials: %w", err)
	}
	if err := json.Unmarshal(remote, &rec.RemoteCredentials); err != nil {
		return nil, fmt.Errorf("decode remote credentials: %w", err)
	}
	if err := json.Unmarshal(endpoints, &rec.NegotiatedEndpoints); err != nil {
		return nil, fmt.Errorf("decode endpoints: %w", err)
	}
	return &rec, nil
}

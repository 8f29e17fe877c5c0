package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gradebench/gradebench/internal/data/cryptoutil"
	"github.com/gradebench/gradebench/internal/data/pgxutil"
	"github.com/gradebench/gradebench/internal/domain/model"
)

// SecretRepo stores owner-scoped credentials with at-rest encryption. One row
// per (owner_id, secret_type); Put replaces an existing value.
type SecretRepo struct {
	DB  *sql.DB
	Enc cryptoutil.Encryptor
}

// NewSecretRepo creates a new SecretRepo.
func NewSecretRepo(db *sql.DB, enc cryptoutil.Encryptor) *SecretRepo {
	return &SecretRepo{DB: db, Enc: enc}
}

const secretColumns = `id, owner_id, secret_type, value, created_at, updated_at`

func (r *SecretRepo) decryptValue(secret *model.Secret) error {
	if secret == nil || secret.Value == "" {
		return nil
	}
	pt, err := r.Enc.Decrypt(secret.Value)
	if err != nil {
		return fmt.Errorf("decrypt value: %w", err)
	}
	secret.Value = string(pt)
	return nil
}

// Put stores or replaces the secret for (owner_id, secret_type) and returns it
// with the decrypted value.
func (r *SecretRepo) Put(ctx context.Context, req model.PutSecretRequest) (*model.Secret, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	cipher, err := r.Enc.Encrypt([]byte(req.Value))
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	var out model.Secret
	err = pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			INSERT INTO secrets (id, owner_id, secret_type, value, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
			ON CONFLICT (owner_id, secret_type)
			DO UPDATE SET value = EXCLUDED.value, updated_at = now()
			RETURNING `+secretColumns,
			uuid.NewString(), req.OwnerID, req.SecretType, cipher)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Secret])
		if cerr != nil {
			return cerr
		}
		out = collected
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("put secret: %w", err)
	}

	if derr := r.decryptValue(&out); derr != nil {
		return nil, derr
	}
	return &out, nil
}

// Get fetches the secret for (owner_id, secret_type) with decrypted value.
func (r *SecretRepo) Get(ctx context.Context, ownerID, secretType string) (*model.Secret, error) {
	var out model.Secret
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, `
			SELECT `+secretColumns+`
			FROM secrets
			WHERE owner_id = $1 AND secret_type = $2
		`, ownerID, secretType)
		if qerr != nil {
			return qerr
		}
		defer rows.Close()
		collected, cerr := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Secret])
		if cerr != nil {
			return cerr
		}
		out = collected
		return nil
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}

	if derr := r.decryptValue(&out); derr != nil {
		return nil, derr
	}
	return &out, nil
}

// Delete removes the secret for (owner_id, secret_type).
func (r *SecretRepo) Delete(ctx context.Context, ownerID, secretType string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM secrets
		WHERE owner_id = $1 AND secret_type = $2
	`, ownerID, secretType)
	if err != nil {
		return false, fmt.Errorf("delete secret: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete rows affected: %w", err)
	}
	return affected > 0, nil
}

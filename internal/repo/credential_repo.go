package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/feedhub/internal/model"
	"github.com/xxxsen/feedhub/internal/pkg/dbutil"
	appErr "github.com/xxxsen/feedhub/internal/pkg/errors"
)

type CredentialRepo struct {
	db *sql.DB
}

func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Upsert replaces the secret for (workspace, provider). Ctime survives a replace.
func (r *CredentialRepo) Upsert(ctx context.Context, cred *model.StoredCredential) error {
	const query = `
		INSERT INTO stored_credentials (workspace_id, provider, secret, key_version, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workspace_id, provider)
		DO UPDATE SET secret = EXCLUDED.secret, key_version = EXCLUDED.key_version, mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query,
		cred.WorkspaceID,
		cred.Provider,
		cred.Secret,
		cred.KeyVersion,
		cred.Ctime,
		cred.Mtime,
	)
	return err
}

func (r *CredentialRepo) Get(ctx context.Context, workspaceID, provider string) (*model.StoredCredential, error) {
	where := map[string]interface{}{
		"workspace_id": workspaceID,
		"provider":     provider,
	}
	sqlStr, args, err := builder.BuildSelect("stored_credentials", where, []string{"workspace_id", "provider", "secret", "key_version", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	var cred model.StoredCredential
	if err := rows.Scan(&cred.WorkspaceID, &cred.Provider, &cred.Secret, &cred.KeyVersion, &cred.Ctime, &cred.Mtime); err != nil {
		return nil, err
	}
	return &cred, nil
}

// UpdateSecretIf swaps the secret only when the stored version still equals fromVersion,
// so two runs re-keying the same row do not clobber each other.
func (r *CredentialRepo) UpdateSecretIf(ctx context.Context, workspaceID, provider, fromVersion, secret, toVersion string, mtime int64) (bool, error) {
	where := map[string]interface{}{
		"workspace_id": workspaceID,
		"provider":     provider,
		"key_version":  fromVersion,
	}
	update := map[string]interface{}{
		"secret":      secret,
		"key_version": toVersion,
		"mtime":       mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("stored_credentials", where, update)
	if err != nil {
		return false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *CredentialRepo) Delete(ctx context.Context, workspaceID, provider string) error {
	where := map[string]interface{}{
		"workspace_id": workspaceID,
		"provider":     provider,
	}
	sqlStr, args, err := builder.BuildDelete("stored_credentials", where)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

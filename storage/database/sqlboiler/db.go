// Package boiledrepos implements the entitlement & attempt stores on postgres,
// with sqlboiler raw queries.
package boiledrepos

import (
	"context"
	"database/sql"

	"github.com/friendsofgo/errors"
	"github.com/lib/pq"

	"github.com/trezcool/elearn/core"
)

const pqForeignKeyViolation = "23503"

// inTx runs fn in a transaction, committed only if fn succeeds.
func inTx(ctx context.Context, db core.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation
}

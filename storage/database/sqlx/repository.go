// Package sqlxrepos implements the repositories over PostgreSQL with jmoiron/sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/sanaa/core"
)

// trapNoRowsErr maps psql "no rows" err to notFound.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return dbError(err, msg)
}

// dbError wraps err with msg. A lost database connection becomes a core shutdown error.
func dbError(err error, msg string) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return core.NewShutdownError(msg + ": database connection lost: " + err.Error())
	}
	return errors.Wrap(err, msg)
}

// inTx runs fn in a transaction, committed if fn succeeds and rolled back otherwise.
func inTx(ctx context.Context, db core.DB, fn func(tx core.DBTransactor) error) (err error) {
	var tx core.DBTransactor
	if tx, err = db.BeginTxx(ctx, nil); err != nil {
		return dbError(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return dbError(tx.Commit(), "committing transaction")
}

// orderBy builds an ORDER BY clause out of the allowed columns only. Unknown fields are dropped.
func orderBy(ordering []core.DBOrdering, allowed map[string]string, fallback string) string {
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := allowed[ord.Field]
		if !ok {
			continue
		}
		orderList = append(orderList, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	if len(orderList) == 0 {
		return " ORDER BY " + fallback
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

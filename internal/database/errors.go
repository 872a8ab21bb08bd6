package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/example/studyflow/internal/apperr"
)

// translate classifies a driver error under the apperr taxonomy
func translate(op string, err error) error {
	if err == nil {
		return nil
	}

	var classified *apperr.Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, op)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.New(op, apperr.ErrNotFound, err)
	}
	if isTransient(err) {
		return apperr.Transient(op, err)
	}
	return errors.Wrap(err, op)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "53300", "57P01":
			return true
		}
		return pgErr.Code.Class() == "08"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1040, 1205, 1213:
			return true
		}
	}
	return false
}

// isUniqueViolation reports a duplicate key on insert
func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}

// retry runs fn until it succeeds, fails permanently, or the retry budget is
// spent. Only transient store errors are retried.
func (db *DB) retry(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = db.retryInitial
	eb.MaxInterval = 2 * time.Second
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	b = backoff.WithMaxRetries(b, uint64(max(db.maxRetries, 0)))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := translate(op, fn())
		if err == nil {
			return nil
		}
		if !apperr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		if attempt <= db.maxRetries {
			db.logger.Warn("retrying store operation", "op", op, "attempt", attempt, "error", err)
		}
		return err
	}, b)
}

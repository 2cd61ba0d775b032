package executor

import (
	"context"
	"time"

	"myperf/internal/db"
	"myperf/internal/tabular"
	"myperf/internal/util"

	"github.com/pkg/errors"
)

// Executor runs one diagnostic query at a time, each on its own connection.
type Executor struct {
	Connector db.Connector
	// Timeout bounds connect + query + row streaming. Zero means no limit.
	Timeout time.Duration
	// NullText replaces SQL NULL cells.
	NullText string
}

// New builds an executor.
func New(c db.Connector, timeout time.Duration) *Executor {
	return &Executor{Connector: c, Timeout: timeout}
}

// Execute opens a new connection, runs sqlText and returns every row as text
// in server order. The connection is closed before returning. Failures are
// *QueryExecutionError; nothing is retried.
func (e *Executor) Execute(ctx context.Context, queryID string, sqlText string) (tabular.Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}
	start := time.Now()
	conn, err := e.Connector.Connect(ctx)
	if err != nil {
		return tabular.Result{}, newQueryError(ctx, queryID, errors.Wrap(err, "open connection"), err)
	}
	defer util.CloseWithErr(conn, "query "+queryID)
	conn.Observe = func(_ string, elapsed time.Duration, err error) {
		util.Detailf("query %s executed in %s err=%v", queryID, elapsed, err)
	}

	res, err := e.collect(ctx, conn, sqlText)
	if err != nil {
		return tabular.Result{}, newQueryError(ctx, queryID, err, err)
	}
	util.Detailf("query %s returned %d row(s) in %s", queryID, len(res.Rows), time.Since(start))
	return res, nil
}

func (e *Executor) collect(ctx context.Context, conn *db.DB, sqlText string) (tabular.Result, error) {
	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return tabular.Result{}, err
	}
	defer util.CloseWithErr(rows, "rows")

	cols, err := rows.Columns()
	if err != nil {
		return tabular.Result{}, errors.Wrap(err, "read columns")
	}
	res := tabular.Result{Columns: cols}
	values := make([][]byte, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(scanArgs...); err != nil {
			return tabular.Result{}, errors.Wrap(err, "scan row")
		}
		row := make([]string, len(cols))
		for i, v := range values {
			if v == nil {
				row[i] = e.NullText
				continue
			}
			row[i] = string(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return tabular.Result{}, err
	}
	return res, nil
}

func newQueryError(ctx context.Context, queryID string, wrapped error, cause error) *QueryExecutionError {
	kind := Classify(cause)
	if kind == KindOther && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &QueryExecutionError{QueryID: queryID, Kind: kind, Cause: wrapped}
}

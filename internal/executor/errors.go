package executor

import (
	"context"
	"database/sql/driver"
	"fmt"

	"myperf/internal/db"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// Kind groups query failures by what the operator has to fix.
type Kind string

// Failure kinds.
const (
	KindConnectivity  Kind = "connectivity"
	KindPermission    Kind = "permission"
	KindSyntax        Kind = "syntax"
	KindMissingObject Kind = "missing_object"
	KindTimeout       Kind = "timeout"
	KindOther         Kind = "other"
)

// permissionErrors are server errors caused by missing privileges.
// 1044/1045 deny database or user access, 1142/1143 deny table or column
// access, 1227 requires a global privilege such as PROCESS.
var permissionErrors = map[uint16]struct{}{
	1044: {},
	1045: {},
	1142: {},
	1143: {},
	1227: {},
}

// missingObjectErrors cover tables, columns and functions absent on this
// server version or with performance_schema/sys disabled.
var missingObjectErrors = map[uint16]struct{}{
	1054: {},
	1109: {},
	1146: {},
	1305: {},
	1683: {},
}

// QueryExecutionError reports that one diagnostic query could not be run.
type QueryExecutionError struct {
	QueryID string
	Kind    Kind
	Cause   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query %s failed (%s): %v", e.QueryID, e.Kind, e.Cause)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Cause
}

// Classify maps a driver or context error to a Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	var connErr *db.ConnectivityError
	if errors.As(err, &connErr) {
		return KindConnectivity
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if _, ok := permissionErrors[mysqlErr.Number]; ok {
			return KindPermission
		}
		if _, ok := missingObjectErrors[mysqlErr.Number]; ok {
			return KindMissingObject
		}
		if mysqlErr.Number == 1064 {
			return KindSyntax
		}
		return KindOther
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return KindConnectivity
	}
	return KindOther
}

package db

import (
	"context"
	"database/sql"
	"regexp"
	"strings"

	"myperf/internal/util"

	"github.com/blang/semver/v4"
	"github.com/pkg/errors"
)

const queryServerVersion = "SELECT @@version, @@version_comment"

var reVersionCore = regexp.MustCompile(`^\d+\.\d+\.\d+`)

// ServerVersion is the version reported by the server, fetched once per run.
type ServerVersion struct {
	Raw     string
	Comment string
}

func (v ServerVersion) String() string {
	if v.Comment == "" {
		return v.Raw
	}
	return v.Raw + " (" + v.Comment + ")"
}

// Semver parses the numeric core of the version. Vendor suffixes such as
// "-0ubuntu0.20.04.2" or "-log" are ignored.
func (v ServerVersion) Semver() (semver.Version, error) {
	core := reVersionCore.FindString(v.Raw)
	if core == "" {
		return semver.Version{}, errors.Errorf("couldn't parse version string '%s'", v.Raw)
	}
	return semver.Parse(core)
}

// IsMariaDB reports whether the server identifies as MariaDB.
func (v ServerVersion) IsMariaDB() bool {
	return strings.Contains(v.Raw, "MariaDB") || strings.Contains(strings.ToLower(v.Comment), "mariadb")
}

// Probe opens one throwaway connection, reads the server version and closes
// the connection. Any failure is a *ConnectivityError.
func Probe(ctx context.Context, c Connector) (ServerVersion, error) {
	conn, err := c.Connect(ctx)
	if err != nil {
		var connErr *ConnectivityError
		if errors.As(err, &connErr) {
			return ServerVersion{}, err
		}
		return ServerVersion{}, &ConnectivityError{Cause: err}
	}
	defer util.CloseWithErr(conn, "version probe")

	var raw, comment sql.NullString
	if err := conn.QueryRowContext(ctx, queryServerVersion).Scan(&raw, &comment); err != nil {
		return ServerVersion{}, &ConnectivityError{Cause: errors.Wrap(err, "read server version")}
	}
	v := ServerVersion{Raw: strings.TrimSpace(raw.String), Comment: strings.TrimSpace(comment.String)}
	if v.Raw == "" {
		return ServerVersion{}, &ConnectivityError{Cause: errors.New("server reported an empty version")}
	}
	util.Infof("server version: %s", v)
	return v, nil
}

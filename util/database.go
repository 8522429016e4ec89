// This file is part of meshbus, a peer-to-peer publish/subscribe broker.
//
// Adapted from gnunet-go's util/database.go: the same "driver:dsn"
// connection-spec parser, used by store.NewSQLSink to open a sink's
// backing database.

package util

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Error messages related to databases
var (
	ErrSqlInvalidDatabaseSpec = fmt.Errorf("Invalid database specification")
	ErrSqlNoDatabase          = fmt.Errorf("Database not found")
)

// ConnectSqlDatabase connects to an SQL database (various types and flavors):
// The 'spec' option defines the arguments required to connect to a database;
// the meaning and format of the arguments depends on the specific SQL database.
// The spec is split at its first ':' character; the first (and mandatory)
// argument defines the SQL database type, and the rest of the string is the
// second argument, whose meaning depends on the value of the first.
// The following SQL types are implemented:
// * 'sqlite3': SQLite3-compatible database; the second argument specifies the
//              file that holds the data (e.g. "sqlite3:/home/user/store.db")
// * 'mysql':   A MySQL-compatible database; the second argument specifies the
//              information required to log into the database (e.g.
//              "[user[:passwd]@][proto[(addr)]]/dbname[?param1=value1&...]").
func ConnectSqlDatabase(spec string) (db *sql.DB, err error) {
	// split spec string into segments
	specs := strings.SplitN(spec, ":", 2)
	if len(specs) < 2 {
		return nil, ErrSqlInvalidDatabaseSpec
	}
	switch specs[0] {
	case "sqlite3":
		// check if the database file exists
		var fi os.FileInfo
		if fi, err = os.Stat(specs[1]); err != nil {
			return nil, ErrSqlNoDatabase
		}
		if fi.IsDir() {
			return nil, ErrSqlNoDatabase
		}
		// open the database file
		return sql.Open("sqlite3", specs[1])
	case "mysql":
		// just connect to the database
		return sql.Open("mysql", specs[1])
	}
	return nil, ErrSqlInvalidDatabaseSpec
}

//go:build !cgo_sqlite && !native_sqlite

package main

import (
	"database/sql"

	_ "github.com/tursodatabase/go-libsql"
)

func initDB(path string) (*sql.DB, error) {
	return sql.Open("libsql", "file:"+path)
}

//go:build sqlite_vec && !purego
// +build sqlite_vec,!purego

package storage

// Compiled with CGO and the sqlite_vec tag. Cosine ranking is delegated to
// vec_distance_cosine; the sqlite_fts5 tag is required for the lexical index.
//
//   CGO_ENABLED=1 go build -tags "sqlite_vec,sqlite_fts5" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = true

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

//go:build !(sqlite_vec && cgo)

package store

import (
	_ "modernc.org/sqlite"
)

// Default build: pure-Go SQLite driver, no C toolchain required.
const driverName = "sqlite"

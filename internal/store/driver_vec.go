//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// sqlite_vec build: cgo driver with the sqlite-vec extension registered, for
// installations with large novelty indexes where the brute-force Go scan
// becomes noticeable.
const driverName = "sqlite3"

func init() {
	// vec.Auto registers sqlite-vec as an auto-loadable extension with the
	// mattn/go-sqlite3 driver.
	vec.Auto()
}

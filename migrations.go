// Package clinic holds assets compiled into the clinic binaries.
package clinic

import "embed"

// Migrations contains the numbered SQL files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Package migrations embeds all SQL migration files so the binaries are
// self-contained; both the API server and the worker apply the schema on
// startup regardless of working directory.
package migrations

import "embed"

// FS contains all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS

package migrations

import "embed"

// FS holds the goose SQL migrations so binaries and tests do not depend on
// the working directory.
//
//go:embed *.sql
var FS embed.FS

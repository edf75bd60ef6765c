// Package migrations embeds the attribute store's SQL migrations into the
// binary so the agent can migrate without the files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS

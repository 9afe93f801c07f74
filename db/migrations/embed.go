// Package migrations contains the embedded SQL schema for the PostgreSQL
// store. Files apply in lexical order, once each.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Package migrations embeds the schema scripts applied by "briefd migrate".
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS

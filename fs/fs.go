package appfs

import "embed"

// FS holds the SQL migrations, the email templates and the common passwords list.
//
//go:embed migrations all:assets
var FS embed.FS

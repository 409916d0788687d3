// Package all registers the built-in artifact stores ("file" and "s3").
package all

import (
	_ "phoenix/internal/store/fs"
	_ "phoenix/internal/store/s3"
)

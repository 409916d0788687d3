// Package all registers every source format with the parser registry.
package all

import (
	_ "phoenix/internal/parser/expression"
	_ "phoenix/internal/parser/proteomics"
	_ "phoenix/internal/parser/vcf"
)

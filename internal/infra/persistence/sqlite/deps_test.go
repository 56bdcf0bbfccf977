package sqlite

import (
	"testing"

	"mitostat/testutil"
)

func TestImportsStayWithinPersistence(t *testing.T) {
	testutil.AssertModuleImports(t, ".",
		"mitostat/pkg/domain",
		"mitostat/internal/infra/persistence/memory",
		"mitostat/internal/infra/persistence/relational",
	)
}

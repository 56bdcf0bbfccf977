package popgen

import (
	"testing"

	"mitostat/testutil"
)

func TestKernelStaysStorageFree(t *testing.T) {
	testutil.AssertModuleImports(t, ".", "mitostat/pkg/domain")
	testutil.AssertNoTransitiveDependency(t, ".", testutil.IsInfraImport, "statistics kernel must not reach storage backends")
}

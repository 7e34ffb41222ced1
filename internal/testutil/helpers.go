// Package testutil holds helpers shared by tests that need a real nft.
package testutil

import (
	"os"
	"os/exec"
	"testing"

	"grimm.is/nftctl/internal/brand"
)

// IntegrationEnv is the environment variable that enables tests against the
// host's nft binary and kernel.
var IntegrationEnv = brand.ConfigEnvPrefix + "_INTEGRATION"

// RequireNft skips the test unless integration tests are enabled, the test
// runs as root and the nft binary can be found. It returns the binary path.
func RequireNft(t *testing.T) string {
	t.Helper()
	if os.Getenv(IntegrationEnv) == "" {
		t.Skipf("Skipping test: set %s=1 to run against the real nft", IntegrationEnv)
	}
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
	path, err := exec.LookPath(brand.NftBinary)
	if err != nil {
		t.Skipf("Skipping test: %s not found", brand.NftBinary)
	}
	return path
}

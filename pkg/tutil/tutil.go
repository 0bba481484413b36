package tutil

import (
	"os"
	"strings"
)

// IsIntegrationTest reports whether tests that talk to a live Dataverse
// installation should run.
func IsIntegrationTest() bool {
	testType := os.Getenv("DV_TEST")
	return strings.ToLower(testType) == "integration"
}

package app

import (
	"os"
	"sync"
)

const testModeEnv = "STUDENTDESK_TEST_MODE"

// InTestMode reports whether STUDENTDESK_TEST_MODE=1 was set when first asked.
// The binaries exit early in that mode so `go test ./...` never dials
// Postgres or Redis.
var InTestMode = sync.OnceValue(func() bool {
	return os.Getenv(testModeEnv) == "1"
})

// Package testing flips binaries into test mode so importing a main package
// from tests never dials Postgres, Redis or Kafka.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("PAYALLOC_TEST_MODE", "1")
		_ = os.Setenv("KAFKA_BROKERS", "")
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}

package notify

import (
	"testing"

	"go.uber.org/goleak"
)

// Every test must leave no dispatcher worker behind.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

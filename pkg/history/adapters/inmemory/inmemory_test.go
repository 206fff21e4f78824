package inmemory

import (
	"testing"

	"github.com/lexlapax/recall/pkg/history"
	"github.com/lexlapax/recall/test/testutil"
)

func TestInMemoryHistorySuite(t *testing.T) {
	testutil.RunHistoryStoreSuite(t, func(t *testing.T) history.Store {
		return New()
	})
}

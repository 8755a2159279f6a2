package memory

import (
	"testing"

	"github.com/agentstation/ecomap/pkg/store"
	"github.com/agentstation/ecomap/pkg/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

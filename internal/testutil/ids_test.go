package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs_Ordered(t *testing.T) {
	ids := NewSequentialIDs("act")
	assert.Equal(t, "act-0001", ids.Next())
	assert.Equal(t, "act-0002", ids.Next())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "test-0001", NewSequentialIDs("").Next())
}

func TestSequentialIDs_Unique(t *testing.T) {
	ids := NewSequentialIDs("x")
	var mu sync.Mutex
	seen := map[string]bool{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := ids.Next()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
}

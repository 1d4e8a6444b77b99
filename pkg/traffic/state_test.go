package traffic

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_ZeroValue(t *testing.T) {
	var s State
	assert.Equal(t, Counts{}, s.Read())
	assert.Equal(t, uint64(0), s.Snapshot().Seq)
	assert.True(t, s.Snapshot().UpdatedAt.IsZero())
}

func TestState_ReadAfterPublish(t *testing.T) {
	s := NewState()

	for i := 1; i <= 5; i++ {
		c := Counts{Lane1: i, Lane2: i * 2, Lane3: i * 3, Lane4: i * 4}
		snap := s.Publish(c)

		assert.Equal(t, c, s.Read())
		assert.Equal(t, uint64(i), snap.Seq)
		assert.Equal(t, snap, s.Snapshot())
	}
}

// Readers must never observe lanes from two different publishes.
func TestState_ConcurrentReadersSeeWholeRecords(t *testing.T) {
	s := NewState()
	const writes = 5000

	var wg sync.WaitGroup
	torn := make(chan Counts, 1)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writes; i++ {
				c := s.Read()
				if c.Lane2 != c.Lane1 || c.Lane3 != c.Lane1 || c.Lane4 != c.Lane1 {
					select {
					case torn <- c:
					default:
					}
					return
				}
			}
		}()
	}

	for i := 0; i < writes; i++ {
		s.Publish(Counts{Lane1: i, Lane2: i, Lane3: i, Lane4: i})
	}
	wg.Wait()

	select {
	case c := <-torn:
		t.Fatalf("reader saw a torn record: %+v", c)
	default:
	}
	assert.Equal(t, uint64(writes), s.Snapshot().Seq)
}

func TestCounts_JSON(t *testing.T) {
	data, err := json.Marshal(Counts{Lane1: 1, Lane2: 2, Lane3: 3, Lane4: 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lane1_count":1,"lane2_count":2,"lane3_count":3,"lane4_count":4}`, string(data))
}

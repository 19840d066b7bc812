package main

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRandomPair_DistinctAndInRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		a, b := randomPair(3, 5)
		assert.NotEqual(t, a, b)
		assert.GreaterOrEqual(t, a, uint(3))
		assert.LessOrEqual(t, a, uint(5))
		assert.GreaterOrEqual(t, b, uint(3))
		assert.LessOrEqual(t, b, uint(5))
	}
}

func TestBenchStats_Percentiles(t *testing.T) {
	s := NewBenchStats()
	for i := 1; i <= 100; i++ {
		s.Add(http.StatusOK, nil, time.Duration(i)*time.Millisecond)
	}
	s.Add(http.StatusConflict, nil, time.Millisecond)
	s.Add(0, assert.AnError, 0)

	s.Report(time.Second)
	assert.Equal(t, 102, s.total)
	assert.Equal(t, 1, s.errors)
	assert.Equal(t, 100, s.byStatus[http.StatusOK])
	assert.Equal(t, 1, s.byStatus[http.StatusConflict])
	assert.Equal(t, 100*time.Millisecond, s.latencies[len(s.latencies)-1])
}

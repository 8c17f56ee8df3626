package bloom

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterMatchesAddedKeys(t *testing.T) {
	p := NewPolicy(10)
	var keys [][]byte
	for i := 0; i < 200; i++ {
		keys = append(keys, []byte(fmt.Sprintf("key-%d", i)))
	}
	filter := p.CreateFilter(keys, nil)
	for _, k := range keys {
		require.True(t, p.KeyMayMatch(k, filter), "key %q should match its own filter", k)
	}
}

func TestFilterFalsePositiveRateIsBounded(t *testing.T) {
	p := NewPolicy(10)
	var keys [][]byte
	for i := 0; i < 1000; i++ {
		keys = append(keys, []byte(fmt.Sprintf("present-%d", i)))
	}
	filter := p.CreateFilter(keys, nil)

	falsePositives := 0
	const trials = 10000
	for i := 0; i < trials; i++ {
		k := []byte(fmt.Sprintf("absent-%d", i))
		if p.KeyMayMatch(k, filter) {
			falsePositives++
		}
	}
	// 10 bits/key should keep the false-positive rate near 1%; allow
	// generous headroom so the test isn't flaky.
	require.Less(t, falsePositives, trials/10)
}

func TestEmptyFilterNeverMatches(t *testing.T) {
	p := NewPolicy(10)
	filter := p.CreateFilter(nil, nil)
	require.False(t, p.KeyMayMatch([]byte("anything"), filter))
}

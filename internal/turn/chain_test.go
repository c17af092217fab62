// ABOUTME: Tests for interceptor composition
// ABOUTME: Covers ordering around next, short-circuits and long chains

package turn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_NestsAroundLast(t *testing.T) {
	var log []string
	names := []string{"a", "b"}
	got, err := chain(context.Background(), len(names),
		func(i int, ctx context.Context, next func(context.Context) (int, error)) (int, error) {
			log = append(log, names[i]+" before")
			v, err := next(ctx)
			log = append(log, names[i]+" after")
			return v + 1, err
		},
		func(ctx context.Context) (int, error) {
			log = append(log, "last")
			return 10, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 12, got)
	assert.Equal(t, []string{"a before", "b before", "last", "b after", "a after"}, log)
}

func TestChain_ShortCircuitSkipsRest(t *testing.T) {
	calls := 0
	got, err := chain(context.Background(), 3,
		func(i int, ctx context.Context, next func(context.Context) (string, error)) (string, error) {
			calls++
			if i == 0 {
				return "mine", nil
			}
			return next(ctx)
		},
		func(ctx context.Context) (string, error) {
			t.Fatal("last must not run")
			return "", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "mine", got)
	assert.Equal(t, 1, calls)
}

func TestChain_ManyInterceptors(t *testing.T) {
	const n = 10000
	got, err := chain(context.Background(), n,
		func(i int, ctx context.Context, next func(context.Context) (int, error)) (int, error) {
			v, err := next(ctx)
			return v + 1, err
		},
		func(ctx context.Context) (int, error) { return 0, nil })
	require.NoError(t, err)
	assert.Equal(t, n, got)
}

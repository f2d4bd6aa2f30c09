package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUnknownStrategy(t *testing.T) {
	_, err := New("nonsense", nil)
	require.Error(t, err)
}

func TestNewCustomWithoutResolverFails(t *testing.T) {
	_, err := New(StrategyCustom, nil)
	require.ErrorIs(t, err, ErrCustomResolverRequired)
}

func TestNewCustomWithResolverUsesIt(t *testing.T) {
	called := false
	custom := Func(func(ctx context.Context, cc Context) (Verdict, error) {
		called = true
		return Merge(map[string]any{"title": "merged"}), nil
	})

	r, err := New(StrategyCustom, custom)
	require.NoError(t, err)

	verdict, err := r.Resolve(context.Background(), Context{})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, ResolutionMerged, verdict.Resolution)
	require.Equal(t, "merged", verdict.Merged["title"])
}

func TestLastWriteWinsPicksNewerSide(t *testing.T) {
	r, err := New(StrategyLastWriteWins, nil)
	require.NoError(t, err)

	v, err := r.Resolve(context.Background(), Context{LocalUpdatedAt: 200, ServerUpdatedAt: 100})
	require.NoError(t, err)
	require.Equal(t, ResolutionLocal, v.Resolution)

	v, err = r.Resolve(context.Background(), Context{LocalUpdatedAt: 100, ServerUpdatedAt: 200})
	require.NoError(t, err)
	require.Equal(t, ResolutionServer, v.Resolution)
}

func TestLastWriteWinsTieGoesToServer(t *testing.T) {
	r, err := New(StrategyLastWriteWins, nil)
	require.NoError(t, err)

	v, err := r.Resolve(context.Background(), Context{LocalUpdatedAt: 100, ServerUpdatedAt: 100})
	require.NoError(t, err)
	require.Equal(t, ResolutionServer, v.Resolution)
}

func TestServerWinsAlwaysServer(t *testing.T) {
	r, err := New(StrategyServerWins, nil)
	require.NoError(t, err)
	v, err := r.Resolve(context.Background(), Context{LocalUpdatedAt: 999, ServerUpdatedAt: 1})
	require.NoError(t, err)
	require.Equal(t, ResolutionServer, v.Resolution)
}

func TestClientWinsAlwaysLocal(t *testing.T) {
	r, err := New(StrategyClientWins, nil)
	require.NoError(t, err)
	v, err := r.Resolve(context.Background(), Context{LocalUpdatedAt: 1, ServerUpdatedAt: 999})
	require.NoError(t, err)
	require.Equal(t, ResolutionLocal, v.Resolution)
}

func TestResolutionString(t *testing.T) {
	require.Equal(t, "local", ResolutionLocal.String())
	require.Equal(t, "server", ResolutionServer.String())
	require.Equal(t, "merged", ResolutionMerged.String())
	require.Equal(t, "unknown", Resolution(99).String())
}

// Package resolver implements the pluggable conflict resolution policy used
// by the pull pipeline when a server update collides with a pending local
// edit.
package resolver

import (
	"context"
	"errors"
	"fmt"
)

// ErrCustomResolverRequired is returned by New when StrategyCustom is
// selected without supplying a custom Resolver.
var ErrCustomResolverRequired = errors.New("resolver: custom strategy selected without a resolver function")

// Resolution names which side (or merge) a resolver chose.
type Resolution int

const (
	ResolutionLocal Resolution = iota
	ResolutionServer
	ResolutionMerged
)

func (r Resolution) String() string {
	switch r {
	case ResolutionLocal:
		return "local"
	case ResolutionServer:
		return "server"
	case ResolutionMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// Verdict is a resolver's decision. Merged is only meaningful when
// Resolution == ResolutionMerged.
type Verdict struct {
	Resolution Resolution
	Merged     map[string]any
}

// Local is the "keep local, drop server" verdict.
func Local() Verdict { return Verdict{Resolution: ResolutionLocal} }

// Server is the "overwrite local from server" verdict.
func Server() Verdict { return Verdict{Resolution: ResolutionServer} }

// Merge is the "overwrite local from this merged mapping" verdict.
func Merge(m map[string]any) Verdict {
	return Verdict{Resolution: ResolutionMerged, Merged: m}
}

// Context carries everything a resolver needs to decide a winner for one
// conflicting record.
type Context struct {
	Table           string
	RecordID        string
	LocalData       map[string]any
	ServerData      map[string]any
	LocalUpdatedAt  int64
	ServerUpdatedAt int64
}

// Resolver is a pure decision function from a conflict Context to a Verdict.
type Resolver interface {
	Resolve(ctx context.Context, cc Context) (Verdict, error)
}

// Func adapts a plain function to the Resolver interface.
type Func func(ctx context.Context, cc Context) (Verdict, error)

func (f Func) Resolve(ctx context.Context, cc Context) (Verdict, error) { return f(ctx, cc) }

// Strategy selects one of the four built-in resolver variants.
type Strategy string

const (
	StrategyLastWriteWins Strategy = "last-write-wins"
	StrategyServerWins    Strategy = "server-wins"
	StrategyClientWins    Strategy = "client-wins"
	StrategyCustom        Strategy = "custom"
)

// New builds a Resolver for the given strategy. custom is required iff
// strategy == StrategyCustom.
func New(strategy Strategy, custom Resolver) (Resolver, error) {
	switch strategy {
	case StrategyLastWriteWins:
		return Func(lastWriteWins), nil
	case StrategyServerWins:
		return Func(serverWins), nil
	case StrategyClientWins:
		return Func(clientWins), nil
	case StrategyCustom:
		if custom == nil {
			return nil, ErrCustomResolverRequired
		}
		return custom, nil
	default:
		return nil, fmt.Errorf("resolver: unknown strategy %q", strategy)
	}
}

func lastWriteWins(_ context.Context, cc Context) (Verdict, error) {
	if cc.LocalUpdatedAt > cc.ServerUpdatedAt {
		return Local(), nil
	}
	return Server(), nil
}

func serverWins(context.Context, Context) (Verdict, error) { return Server(), nil }

func clientWins(context.Context, Context) (Verdict, error) { return Local(), nil }

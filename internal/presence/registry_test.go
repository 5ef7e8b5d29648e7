// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package presence_test

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/worldgate/internal/presence"
)

// sumOfWorlds recomputes the online count from the snapshot.
func sumOfWorlds(r *presence.Registry) int {
	counts := make(map[int]int)
	for _, e := range r.Snapshot() {
		counts[e.World]++
	}
	total := 0
	for world, n := range counts {
		if n != r.InWorld(world) {
			return -1
		}
		total += n
	}
	return total
}

func TestRegistry_JoinAndLeave(t *testing.T) {
	r := presence.NewRegistry()
	id := ulid.Make()

	require.NoError(t, r.Join(1, "Alice", id))
	assert.True(t, r.Contains("alice"))
	assert.Equal(t, 1, r.WorldOf("ALICE"))
	assert.Equal(t, 1, r.Online())

	assert.False(t, r.Leave(2, "alice"), "leaving another world removes nothing")
	assert.Equal(t, 1, r.Online())

	assert.True(t, r.Leave(1, "alice"))
	assert.False(t, r.Contains("alice"))
	assert.Equal(t, presence.Offline, r.WorldOf("alice"))
	assert.Zero(t, r.Online())

	assert.False(t, r.Leave(1, "alice"), "second leave is a no-op")
	assert.Zero(t, r.Online())
}

func TestRegistry_Lookup(t *testing.T) {
	r := presence.NewRegistry()
	id := ulid.Make()
	require.NoError(t, r.Join(4, "Bob", id))

	entry, ok := r.Lookup(" BOB ")
	require.True(t, ok)
	assert.Equal(t, presence.Entry{World: 4, Username: "bob", AccountID: id}, entry)

	_, ok = r.Lookup("carol")
	assert.False(t, ok)
}

func TestRegistry_UsernameInOneWorld(t *testing.T) {
	r := presence.NewRegistry()
	require.NoError(t, r.Join(1, "alice", ulid.Make()))

	err := r.Join(2, "Alice", ulid.Make())
	assert.ErrorIs(t, err, presence.ErrAlreadyOnline)

	err = r.Join(1, "alice", ulid.Make())
	assert.ErrorIs(t, err, presence.ErrAlreadyOnline)

	assert.Equal(t, 1, r.WorldOf("alice"))
	assert.Equal(t, 1, r.Online())
}

func TestRegistry_Snapshot(t *testing.T) {
	r := presence.NewRegistry()
	a, b, c := ulid.Make(), ulid.Make(), ulid.Make()
	require.NoError(t, r.Join(2, "carol", c))
	require.NoError(t, r.Join(1, "bob", b))
	require.NoError(t, r.Join(1, "Alice", a))

	assert.Equal(t, []presence.Entry{
		{World: 1, Username: "alice", AccountID: a},
		{World: 1, Username: "bob", AccountID: b},
		{World: 2, Username: "carol", AccountID: c},
	}, r.Snapshot())
}

func TestRegistry_ClearWorld(t *testing.T) {
	r := presence.NewRegistry()
	require.NoError(t, r.Join(1, "bob", ulid.Make()))
	require.NoError(t, r.Join(1, "alice", ulid.Make()))
	require.NoError(t, r.Join(2, "carol", ulid.Make()))

	assert.Equal(t, []string{"alice", "bob"}, r.ClearWorld(1))
	assert.Equal(t, 1, r.Online())
	assert.Zero(t, r.InWorld(1))
	assert.True(t, r.Contains("carol"))
	assert.Empty(t, r.ClearWorld(1))

	require.NoError(t, r.Join(3, "alice", ulid.Make()), "cleared players can join elsewhere")
}

func TestRegistry_CounterMatchesMapsAfterRandomSequence(t *testing.T) {
	r := presence.NewRegistry()
	rng := rand.New(rand.NewSource(42))
	names := []string{"alice", "bob", "carol", "dave", "erin", "frank"}

	for i := 0; i < 2000; i++ {
		name := names[rng.Intn(len(names))]
		world := 1 + rng.Intn(3)
		switch rng.Intn(3) {
		case 0, 1:
			_ = r.Join(world, name, ulid.Make())
		case 2:
			r.Leave(world, name)
		}
		require.Equal(t, r.Online(), sumOfWorlds(r), "step %d", i)
	}
}

func TestRegistry_ConcurrentJoinsAdmitOne(t *testing.T) {
	r := presence.NewRegistry()

	const contenders = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []int
	)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(world int) {
			defer wg.Done()
			if err := r.Join(world, "alice", ulid.Make()); err == nil {
				mu.Lock()
				winners = append(winners, world)
				mu.Unlock()
			}
		}(1 + i%4)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, winners[0], r.WorldOf("alice"))
	assert.Equal(t, 1, r.Online())
}

func TestRegistry_ConcurrentMixedOperations(t *testing.T) {
	r := presence.NewRegistry()

	var wg sync.WaitGroup
	for w := 1; w <= 4; w++ {
		wg.Add(1)
		go func(world int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				name := fmt.Sprintf("p%d", i%25)
				if err := r.Join(world, name, ulid.Make()); err == nil && i%2 == 0 {
					r.Leave(world, name)
				}
				_ = r.WorldOf(name)
				_ = r.Online()
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, r.Online(), sumOfWorlds(r))
	assert.LessOrEqual(t, r.Online(), 25)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package presence tracks which world each online player is in.
package presence

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// ErrAlreadyOnline is returned by Join when the username is present in any
// world.
var ErrAlreadyOnline = errors.New("player already online")

// Offline is the world id reported for players not in any world.
const Offline = 0

// Entry is one online player.
type Entry struct {
	World     int
	Username  string
	AccountID ulid.ULID
}

// Registry holds per-world username to account maps and the online count.
// A username is in at most one world. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	worlds map[int]map[string]ulid.ULID
	where  map[string]int
	online int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		worlds: make(map[int]map[string]ulid.ULID),
		where:  make(map[string]int),
	}
}

func key(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Join records username as online in world. It fails with ErrAlreadyOnline
// if the username is online anywhere.
func (r *Registry) Join(world int, username string, accountID ulid.ULID) error {
	k := key(username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.where[k]; ok {
		return ErrAlreadyOnline
	}
	players, ok := r.worlds[world]
	if !ok {
		players = make(map[string]ulid.ULID)
		r.worlds[world] = players
	}
	players[k] = accountID
	r.where[k] = world
	r.online++
	return nil
}

// Leave removes username from world. It reports whether an entry was
// removed; a player online in a different world is left alone.
func (r *Registry) Leave(world int, username string) bool {
	k := key(username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.where[k]; !ok || current != world {
		return false
	}
	r.remove(world, k)
	return true
}

// remove must be called with mu held.
func (r *Registry) remove(world int, k string) {
	players := r.worlds[world]
	delete(players, k)
	if len(players) == 0 {
		delete(r.worlds, world)
	}
	delete(r.where, k)
	r.online--
}

// WorldOf returns the world username is in, or Offline.
func (r *Registry) WorldOf(username string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if world, ok := r.where[key(username)]; ok {
		return world
	}
	return Offline
}

// Lookup returns the entry for username if it is online.
func (r *Registry) Lookup(username string) (Entry, bool) {
	k := key(username)

	r.mu.RLock()
	defer r.mu.RUnlock()

	world, ok := r.where[k]
	if !ok {
		return Entry{}, false
	}
	return Entry{World: world, Username: k, AccountID: r.worlds[world][k]}, true
}

// Contains reports whether username is online in any world.
func (r *Registry) Contains(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.where[key(username)]
	return ok
}

// Online returns the number of online players.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.online
}

// InWorld returns the number of players online in world.
func (r *Registry) InWorld(world int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.worlds[world])
}

// Snapshot returns every entry ordered by world then username.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, r.online)
	for world, players := range r.worlds {
		for username, id := range players {
			entries = append(entries, Entry{World: world, Username: username, AccountID: id})
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].World != entries[j].World {
			return entries[i].World < entries[j].World
		}
		return entries[i].Username < entries[j].Username
	})
	return entries
}

// ClearWorld removes every player in world and returns their usernames,
// sorted.
func (r *Registry) ClearWorld(world int) []string {
	r.mu.Lock()
	players := r.worlds[world]
	usernames := make([]string, 0, len(players))
	for k := range players {
		usernames = append(usernames, k)
	}
	for _, k := range usernames {
		r.remove(world, k)
	}
	r.mu.Unlock()

	sort.Strings(usernames)
	return usernames
}

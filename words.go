/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"math/rand"
	"sync"
	"time"
)

// WordPair is one civilian/undercover word pairing. Civilians all receive
// the civilian word, undercovers the other; blanks receive neither.
type WordPair struct {
	Civilian   string `json:"civilian"`
	Undercover string `json:"undercover"`
}

// PendingWord is a submitted pair awaiting moderation.
type PendingWord struct {
	WordPair
	SubmitterID string    `json:"submitter_id,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

var builtinWords = []WordPair{
	// Food
	{"apple", "banana"},
	{"rice", "noodles"},
	{"milk", "soy milk"},
	{"cake", "bread"},
	{"hotpot", "barbecue"},
	{"cola", "lemonade"},
	{"burger", "sandwich"},
	{"pizza", "quiche"},
	{"coffee", "tea"},
	{"candy", "chocolate"},

	// Household
	{"phone", "laptop"},
	{"toothbrush", "toothpaste"},
	{"towel", "bathrobe"},
	{"slippers", "sneakers"},
	{"umbrella", "raincoat"},
	{"desk lamp", "chandelier"},
	{"watch", "alarm clock"},
	{"backpack", "suitcase"},
	{"mirror", "window"},
	{"comb", "hairpin"},

	// Animals
	{"cat", "dog"},
	{"elephant", "giraffe"},
	{"tiger", "lion"},
	{"rabbit", "hamster"},
	{"whale", "dolphin"},
	{"penguin", "polar bear"},
	{"butterfly", "bee"},
	{"snake", "lizard"},
	{"bird", "chicken"},
	{"fish", "shrimp"},

	// Nature
	{"sun", "moon"},
	{"rain", "snow"},
	{"wind", "cloud"},
	{"mountain", "river"},
	{"fire", "ice"},
	{"rainbow", "sunset"},
	{"lightning", "thunder"},
	{"fog", "haze"},
	{"spring", "autumn"},
	{"summer", "winter"},

	// Transport
	{"train", "car"},
	{"airplane", "helicopter"},
	{"ship", "submarine"},
	{"bicycle", "scooter"},
	{"bus", "subway"},
	{"taxi", "rideshare"},
	{"rocket", "satellite"},
	{"sailboat", "yacht"},

	// Occupations
	{"teacher", "student"},
	{"doctor", "nurse"},
	{"police officer", "firefighter"},
	{"chef", "waiter"},
	{"driver", "passenger"},
	{"actor", "director"},
	{"writer", "painter"},
	{"engineer", "designer"},
	{"lawyer", "judge"},

	// Sports
	{"basketball", "football"},
	{"badminton", "table tennis"},
	{"running", "swimming"},
	{"high jump", "long jump"},
	{"tennis", "volleyball"},
	{"boxing", "taekwondo"},
	{"yoga", "pilates"},
	{"skiing", "skating"},
	{"climbing", "hiking"},

	// Entertainment
	{"movie", "tv series"},
	{"music", "dance"},
	{"novel", "comic"},
	{"guitar", "piano"},
	{"chess", "checkers"},
	{"poker", "mahjong"},
	{"amusement park", "zoo"},
	{"concert", "opera"},

	// Abstract
	{"day", "night"},
	{"joy", "sorrow"},
	{"friend", "rival"},
	{"success", "failure"},
	{"health", "illness"},
	{"peace", "war"},
}

// WordCatalog owns the mutable word pool. Built-in pairs are immutable;
// custom pairs arrive through a pending queue and join the active pool
// only once approved. All access goes through its methods.
type WordCatalog struct {
	mu       sync.Mutex
	builtin  []WordPair
	custom   []WordPair
	pending  []PendingWord
	approved []PendingWord
}

func newWordCatalog() *WordCatalog {
	c := &WordCatalog{
		builtin: make([]WordPair, len(builtinWords)),
	}
	copy(c.builtin, builtinWords)

	return c
}

// existsLocked reports whether the pair is already present in either
// orientation, in the built-in or custom pools.
func (c *WordCatalog) existsLocked(civilian, undercover string) bool {
	for _, pool := range [][]WordPair{c.builtin, c.custom} {
		for _, pair := range pool {
			if (pair.Civilian == civilian && pair.Undercover == undercover) ||
				(pair.Civilian == undercover && pair.Undercover == civilian) {
				return true
			}
		}
	}

	return false
}

// AddCustom enqueues a new pair for moderation.
func (c *WordCatalog) AddCustom(civilian, undercover, submitterID string) error {
	if civilian == "" || undercover == "" {
		return errValidationFailed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.existsLocked(civilian, undercover) {
		return errDuplicateWord
	}

	c.pending = append(c.pending, PendingWord{
		WordPair:    WordPair{Civilian: civilian, Undercover: undercover},
		SubmitterID: submitterID,
		SubmittedAt: time.Now(),
	})

	return nil
}

// Approve moves the pending pair at index into the active custom pool.
func (c *WordCatalog) Approve(index int) (WordPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.pending) {
		return WordPair{}, errIndexOutOfRange
	}

	word := c.pending[index]
	c.pending = append(c.pending[:index], c.pending[index+1:]...)
	c.custom = append(c.custom, word.WordPair)
	c.approved = append(c.approved, word)

	return word.WordPair, nil
}

// Reject discards the pending pair at index.
func (c *WordCatalog) Reject(index int) (WordPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.pending) {
		return WordPair{}, errIndexOutOfRange
	}

	word := c.pending[index].WordPair
	c.pending = append(c.pending[:index], c.pending[index+1:]...)

	return word, nil
}

// RemoveCustom deletes a pair from the custom pool. Built-in pairs
// cannot be removed.
func (c *WordCatalog) RemoveCustom(civilian, undercover string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, pair := range c.custom {
		if pair.Civilian == civilian && pair.Undercover == undercover {
			c.custom = append(c.custom[:i], c.custom[i+1:]...)

			return nil
		}
	}

	return errInvalidTarget
}

// All returns the active pool (built-in plus approved custom pairs).
func (c *WordCatalog) All() []WordPair {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := make([]WordPair, 0, len(c.builtin)+len(c.custom))
	all = append(all, c.builtin...)
	all = append(all, c.custom...)

	return all
}

func (c *WordCatalog) Custom() []WordPair {
	c.mu.Lock()
	defer c.mu.Unlock()

	custom := make([]WordPair, len(c.custom))
	copy(custom, c.custom)

	return custom
}

func (c *WordCatalog) Pending() []PendingWord {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]PendingWord, len(c.pending))
	copy(pending, c.pending)

	return pending
}

// Pick selects one pair uniformly at random from the active pool.
func (c *WordCatalog) Pick(rng *rand.Rand) WordPair {
	c.mu.Lock()
	defer c.mu.Unlock()

	pool := make([]WordPair, 0, len(c.builtin)+len(c.custom))
	pool = append(pool, c.builtin...)
	pool = append(pool, c.custom...)

	return pool[rng.Intn(len(pool))]
}

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"strconv"

	"github.com/valyala/fastrand"
)

// Card is an opaque identifier referencing a piece of external artwork.
// The server only ever tracks card identity and custody, never content.
type Card string

// newShuffledDeck returns a uniform random permutation of n distinct cards.
// Card ids are "1".."n", matching the artwork filenames served to clients.
// The RNG is passed in so tests can seed it deterministically.
func newShuffledDeck(n int, rng *fastrand.RNG) []Card {
	deck := make([]Card, n)
	for i := range deck {
		deck[i] = Card(strconv.Itoa(i + 1))
	}
	shuffle(deck, rng)

	return deck
}

// Fisher-Yates. Engineering-grade randomness; nothing here is a secret.
func shuffle[T any](s []T, rng *fastrand.RNG) {
	for i := len(s) - 1; i > 0; i-- {
		j := int(rng.Uint32n(uint32(i + 1)))
		s[i], s[j] = s[j], s[i]
	}
}

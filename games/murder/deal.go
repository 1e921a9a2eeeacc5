/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package murder holds the rules of the murder party game: the wizard that
// collects players, weapons and locations, and the dealer that hands each
// player a secret target, weapon and location.
package murder

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

const (
	MinPlayers = 3
	MaxPlayers = 20

	// maxDealAttempts bounds redeals when the last owner is left holding
	// only their own name.
	maxDealAttempts = 64
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyPool    = errors.New("no eligible target left")
)

// Card is one player's secret assignment.
type Card struct {
	Owner    string `json:"owner"`
	Target   string `json:"target"`
	Weapon   string `json:"weapon"`
	Location string `json:"location"`
	Revealed bool   `json:"revealed"`
}

// Deal assigns every player a target other than themselves, plus one weapon
// and one location each, then shuffles the cards into display order.
//
// Targets are drawn from the remaining pool with every entry equal to the
// owner's name filtered out. A pass that runs out of targets is dealt again
// from scratch; duplicate names can make that permanent, in which case
// ErrEmptyPool is returned.
func Deal(rng *rand.Rand, players, weapons, locations []string) ([]Card, error) {
	n := len(players)
	if n < MinPlayers {
		return nil, fmt.Errorf("%w: need at least %d players, got %d", ErrInvalidInput, MinPlayers, n)
	}
	if len(weapons) != n || len(locations) != n {
		return nil, fmt.Errorf("%w: %d players, %d weapons, %d locations", ErrInvalidInput, n, len(weapons), len(locations))
	}

	var (
		cards []Card
		err   error
	)

	for range maxDealAttempts {
		cards, err = dealOnce(rng, players, weapons, locations)
		if !errors.Is(err, ErrEmptyPool) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	rng.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})

	return cards, nil
}

func dealOnce(rng *rand.Rand, players, weapons, locations []string) ([]Card, error) {
	targets := append([]string(nil), players...)
	weaponPool := append([]string(nil), weapons...)
	locationPool := append([]string(nil), locations...)

	cards := make([]Card, 0, len(players))

	for _, owner := range players {
		candidates := make([]string, 0, len(targets))
		for _, t := range targets {
			if t != owner {
				candidates = append(candidates, t)
			}
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: %q has nobody to target", ErrEmptyPool, owner)
		}

		target := candidates[rng.IntN(len(candidates))]
		targets = removeOne(targets, target)

		var weapon, location string
		weapon, weaponPool = draw(rng, weaponPool)
		location, locationPool = draw(rng, locationPool)

		cards = append(cards, Card{
			Owner:    owner,
			Target:   target,
			Weapon:   weapon,
			Location: location,
		})
	}

	return cards, nil
}

// draw picks a uniformly random entry and returns it with one occurrence
// of its value removed from the pool.
func draw(rng *rand.Rand, pool []string) (string, []string) {
	v := pool[rng.IntN(len(pool))]

	return v, removeOne(pool, v)
}

func removeOne(pool []string, v string) []string {
	for i, p := range pool {
		if p == v {
			return append(pool[:i], pool[i+1:]...)
		}
	}

	return pool
}

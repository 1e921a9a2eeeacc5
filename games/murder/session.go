/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package murder

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
)

// Step is a page of the setup wizard.
type Step int

const (
	StepCount Step = iota + 1
	StepNames
	StepWeapons
	StepLocations
	StepReveal
)

func (s Step) String() string {
	switch s {
	case StepCount:
		return "count"
	case StepNames:
		return "names"
	case StepWeapons:
		return "weapons"
	case StepLocations:
		return "locations"
	case StepReveal:
		return "reveal"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

const (
	DefaultPlayerCount = 3

	// NoCard marks that no card is currently face up.
	NoCard = -1
)

// Session is one table's wizard state. It is not safe for concurrent use;
// callers serialize events through a single owner.
type Session struct {
	Step           Step
	PlayerCount    int
	Players        []string
	Weapons        []string
	Locations      []string
	WeaponCursor   int
	LocationCursor int
	Cards          []Card
	Revealed       int

	rng *rand.Rand
}

// NewSession returns a session at the first step. Cards are dealt from rng.
func NewSession(rng *rand.Rand) *Session {
	s := &Session{rng: rng}
	s.Reset()

	return s
}

// Reset discards everything collected so far and returns to the first step.
func (s *Session) Reset() {
	*s = Session{
		Step:        StepCount,
		PlayerCount: DefaultPlayerCount,
		Players:     []string{},
		Weapons:     []string{},
		Locations:   []string{},
		Cards:       []Card{},
		Revealed:    NoCard,
		rng:         s.rng,
	}
}

func (s *Session) SetPlayerCount(n int) error {
	if s.Step != StepCount {
		return s.wrongStep("player count")
	}

	s.PlayerCount = n

	return nil
}

func (s *Session) SetPlayerName(i int, name string) error {
	if s.Step != StepNames {
		return s.wrongStep("player name")
	}

	return set(s.Players, i, name)
}

func (s *Session) SetWeapon(i int, weapon string) error {
	if s.Step != StepWeapons {
		return s.wrongStep("weapon")
	}

	return set(s.Weapons, i, weapon)
}

func (s *Session) SetLocation(i int, location string) error {
	if s.Step != StepLocations {
		return s.wrongStep("location")
	}

	return set(s.Locations, i, location)
}

// CanAdvance reports whether Advance would currently succeed.
func (s *Session) CanAdvance() bool {
	return s.gate() == nil
}

// Advance moves to the next weapon or location slot, or to the next step
// once the last slot is filled. Leaving the location step deals the cards.
// On error the session is left unchanged.
func (s *Session) Advance() error {
	if err := s.gate(); err != nil {
		return err
	}

	n := len(s.Players)

	switch s.Step {
	case StepCount:
		s.Players = make([]string, s.PlayerCount)
		s.Step = StepNames
	case StepNames:
		s.Weapons = make([]string, n)
		s.WeaponCursor = 0
		s.Step = StepWeapons
	case StepWeapons:
		if s.WeaponCursor < n-1 {
			s.WeaponCursor++

			return nil
		}

		s.Locations = make([]string, n)
		s.LocationCursor = 0
		s.Step = StepLocations
	case StepLocations:
		if s.LocationCursor < n-1 {
			s.LocationCursor++

			return nil
		}

		cards, err := Deal(s.rng, s.Players, s.Weapons, s.Locations)
		if err != nil {
			return err
		}

		s.Cards = cards
		s.Revealed = NoCard
		s.Step = StepReveal
	}

	return nil
}

// Submit is the keyboard confirmation of the current step. It is guarded
// exactly like Advance.
func (s *Session) Submit() error {
	return s.Advance()
}

// Retreat moves back one weapon slot, or one step. There is no way back
// from the first step or out of the reveal step.
func (s *Session) Retreat() error {
	switch s.Step {
	case StepNames:
		s.Step = StepCount
	case StepWeapons:
		if s.WeaponCursor > 0 {
			s.WeaponCursor--

			return nil
		}

		s.Step = StepNames
	case StepLocations:
		s.Step = StepWeapons
	default:
		return fmt.Errorf("%w: cannot go back from the %s step", ErrInvalidInput, s.Step)
	}

	return nil
}

// ToggleReveal flips card i. While another card is face up the call does
// nothing, so at most one card is ever revealed.
func (s *Session) ToggleReveal(i int) error {
	if s.Step != StepReveal {
		return s.wrongStep("card reveal")
	}
	if i < 0 || i >= len(s.Cards) {
		return fmt.Errorf("%w: no card %d", ErrInvalidInput, i)
	}
	if s.Revealed != NoCard && s.Revealed != i {
		return nil
	}

	s.Cards[i].Revealed = !s.Cards[i].Revealed
	if s.Cards[i].Revealed {
		s.Revealed = i
	} else {
		s.Revealed = NoCard
	}

	return nil
}

// gate returns nil when the current step may be confirmed.
func (s *Session) gate() error {
	switch s.Step {
	case StepCount:
		if s.PlayerCount < MinPlayers || s.PlayerCount > MaxPlayers {
			return fmt.Errorf("%w: player count must be between %d and %d, got %d",
				ErrInvalidInput, MinPlayers, MaxPlayers, s.PlayerCount)
		}
	case StepNames:
		seen := make(map[string]bool, len(s.Players))
		for i, p := range s.Players {
			name := strings.TrimSpace(p)
			if name == "" {
				return fmt.Errorf("%w: player %d has no name", ErrInvalidInput, i+1)
			}
			if seen[name] {
				return fmt.Errorf("%w: player name %q is used twice", ErrInvalidInput, name)
			}
			seen[name] = true
		}
	case StepWeapons:
		if blank(s.Weapons, s.WeaponCursor) {
			return fmt.Errorf("%w: weapon %d is blank", ErrInvalidInput, s.WeaponCursor+1)
		}
	case StepLocations:
		if blank(s.Locations, s.LocationCursor) {
			return fmt.Errorf("%w: location %d is blank", ErrInvalidInput, s.LocationCursor+1)
		}
	default:
		return fmt.Errorf("%w: nothing after the %s step", ErrInvalidInput, s.Step)
	}

	return nil
}

func (s *Session) wrongStep(field string) error {
	return fmt.Errorf("%w: %s cannot be changed during the %s step", ErrInvalidInput, field, s.Step)
}

// View is a read-only copy of the session for rendering.
type View struct {
	Step           Step     `json:"step"`
	PlayerCount    int      `json:"player_count"`
	Players        []string `json:"players"`
	Weapons        []string `json:"weapons"`
	Locations      []string `json:"locations"`
	WeaponCursor   int      `json:"weapon_cursor"`
	LocationCursor int      `json:"location_cursor"`
	Cards          []Card   `json:"cards"`
	Revealed       *int     `json:"revealed"`
	CanAdvance     bool     `json:"can_advance"`
}

func (s *Session) View() View {
	v := View{
		Step:           s.Step,
		PlayerCount:    s.PlayerCount,
		Players:        slices.Clone(s.Players),
		Weapons:        slices.Clone(s.Weapons),
		Locations:      slices.Clone(s.Locations),
		WeaponCursor:   s.WeaponCursor,
		LocationCursor: s.LocationCursor,
		Cards:          slices.Clone(s.Cards),
		CanAdvance:     s.CanAdvance(),
	}

	if s.Revealed != NoCard {
		i := s.Revealed
		v.Revealed = &i
	}

	return v
}

func set(values []string, i int, v string) error {
	if i < 0 || i >= len(values) {
		return fmt.Errorf("%w: no slot %d", ErrInvalidInput, i+1)
	}

	values[i] = v

	return nil
}

func blank(values []string, i int) bool {
	return i < 0 || i >= len(values) || strings.TrimSpace(values[i]) == ""
}

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package murder

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"testing/quick"
)

// playToReveal drives a fresh session through every step with n players.
func playToReveal(t *testing.T, n int) *Session {
	t.Helper()

	s := NewSession(newRand(uint64(n)))

	must(t, s.SetPlayerCount(n))
	must(t, s.Advance())

	for i := range n {
		must(t, s.SetPlayerName(i, fmt.Sprintf("Player %d", i+1)))
	}
	must(t, s.Advance())

	for i := range n {
		must(t, s.SetWeapon(i, fmt.Sprintf("Weapon %d", i+1)))
		must(t, s.Advance())
	}

	for i := range n {
		must(t, s.SetLocation(i, fmt.Sprintf("Location %d", i+1)))
		must(t, s.Submit())
	}

	if s.Step != StepReveal {
		t.Fatalf("expected reveal step, got %s", s.Step)
	}

	return s
}

func must(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatal(err)
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := NewSession(newRand(1))

	want := View{
		Step:        StepCount,
		PlayerCount: 3,
		Players:     []string{},
		Weapons:     []string{},
		Locations:   []string{},
		Cards:       []Card{},
		CanAdvance:  true,
	}

	if got := s.View(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestPlayerCountBoundaries(t *testing.T) {
	tests := []struct {
		count int
		ok    bool
	}{
		{2, false},
		{3, true},
		{20, true},
		{21, false},
		{0, false},
		{-4, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.count), func(t *testing.T) {
			s := NewSession(newRand(1))
			must(t, s.SetPlayerCount(tt.count))

			err := s.Advance()
			if tt.ok {
				if err != nil {
					t.Fatalf("expected count %d to be accepted: %v", tt.count, err)
				}
				if s.Step != StepNames || len(s.Players) != tt.count {
					t.Errorf("expected %d empty names on the names step, got %s %v", tt.count, s.Step, s.Players)
				}
				return
			}

			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if s.Step != StepCount {
				t.Errorf("rejected count moved the wizard to %s", s.Step)
			}
		})
	}
}

func TestBlankNameBlocksAdvance(t *testing.T) {
	s := NewSession(newRand(1))
	must(t, s.SetPlayerCount(3))
	must(t, s.Advance())

	must(t, s.SetPlayerName(0, "Alice"))
	must(t, s.SetPlayerName(1, "   "))
	must(t, s.SetPlayerName(2, "Carol"))

	before := s.View()

	if err := s.Advance(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := s.Submit(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("keyboard submit bypassed the guard: %v", err)
	}

	if after := s.View(); !reflect.DeepEqual(before, after) {
		t.Errorf("rejected advance changed state:\n%+v\n%+v", before, after)
	}
}

func TestDuplicateNamesBlockAdvance(t *testing.T) {
	s := NewSession(newRand(1))
	must(t, s.Advance())

	must(t, s.SetPlayerName(0, "Alice"))
	must(t, s.SetPlayerName(1, "Bob"))
	must(t, s.SetPlayerName(2, " Alice "))

	if s.CanAdvance() {
		t.Fatal("duplicate names should not be confirmable")
	}
	if err := s.Advance(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	must(t, s.SetPlayerName(2, "Carol"))
	must(t, s.Advance())

	if s.Step != StepWeapons || len(s.Weapons) != 3 {
		t.Errorf("expected weapons step with 3 slots, got %s %v", s.Step, s.Weapons)
	}
}

func TestWeaponCursor(t *testing.T) {
	s := NewSession(newRand(1))
	must(t, s.Advance())
	for i, name := range []string{"A", "B", "C"} {
		must(t, s.SetPlayerName(i, name))
	}
	must(t, s.Advance())

	if err := s.Advance(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank weapon should block advance, got %v", err)
	}

	must(t, s.SetWeapon(0, "Rope"))
	must(t, s.Advance())
	if s.WeaponCursor != 1 {
		t.Fatalf("expected cursor 1, got %d", s.WeaponCursor)
	}

	must(t, s.Retreat())
	if s.Step != StepWeapons || s.WeaponCursor != 0 {
		t.Fatalf("expected weapons step at cursor 0, got %s at %d", s.Step, s.WeaponCursor)
	}

	must(t, s.Retreat())
	if s.Step != StepNames {
		t.Fatalf("retreat from first weapon should return to names, got %s", s.Step)
	}
	if s.Players[0] != "A" {
		t.Errorf("names were lost on retreat: %v", s.Players)
	}
}

func TestLocationsRetreatToWeapons(t *testing.T) {
	s := NewSession(newRand(1))
	must(t, s.Advance())
	for i, name := range []string{"A", "B", "C"} {
		must(t, s.SetPlayerName(i, name))
	}
	must(t, s.Advance())
	for i := range 3 {
		must(t, s.SetWeapon(i, "Knife"))
		must(t, s.Advance())
	}

	if s.Step != StepLocations || len(s.Locations) != 3 || s.LocationCursor != 0 {
		t.Fatalf("expected locations step with 3 slots, got %s %v", s.Step, s.Locations)
	}

	must(t, s.SetLocation(0, "Attic"))
	must(t, s.Advance())
	must(t, s.Retreat())

	if s.Step != StepWeapons || s.WeaponCursor != 2 {
		t.Errorf("expected last weapon slot, got %s at %d", s.Step, s.WeaponCursor)
	}
}

func TestRetreatWithoutPreviousStep(t *testing.T) {
	s := NewSession(newRand(1))
	if err := s.Retreat(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("retreat from first step: expected ErrInvalidInput, got %v", err)
	}

	s = playToReveal(t, 3)
	if err := s.Retreat(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("retreat from reveal step: expected ErrInvalidInput, got %v", err)
	}
	if err := s.Advance(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("advance from reveal step: expected ErrInvalidInput, got %v", err)
	}
}

func TestSettersOutsideTheirStep(t *testing.T) {
	s := NewSession(newRand(1))

	if err := s.SetPlayerName(0, "A"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := s.SetWeapon(0, "Rope"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := s.ToggleReveal(0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	must(t, s.Advance())

	if err := s.SetPlayerCount(5); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if err := s.SetPlayerName(3, "D"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("out of range name: expected ErrInvalidInput, got %v", err)
	}
}

func TestPlayThroughDealsCards(t *testing.T) {
	f := func(size uint8) bool {
		n := int(size)%(MaxPlayers-MinPlayers+1) + MinPlayers
		s := playToReveal(t, n)

		if len(s.Cards) != n || s.Revealed != NoCard {
			return false
		}
		for _, c := range s.Cards {
			if c.Owner == c.Target || c.Revealed {
				return false
			}
		}

		return true
	}

	if err := quick.Check(f, &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func TestToggleReveal(t *testing.T) {
	s := playToReveal(t, 4)

	must(t, s.ToggleReveal(0))
	if !s.Cards[0].Revealed || s.Revealed != 0 {
		t.Fatalf("card 0 should be revealed, got %+v (revealed=%d)", s.Cards[0], s.Revealed)
	}

	must(t, s.ToggleReveal(1))
	if !s.Cards[0].Revealed || s.Cards[1].Revealed || s.Revealed != 0 {
		t.Fatalf("toggling another card while one is up should do nothing")
	}

	must(t, s.ToggleReveal(0))
	if s.Cards[0].Revealed || s.Revealed != NoCard {
		t.Fatalf("second toggle should hide card 0 again")
	}
	if v := s.View(); v.Revealed != nil {
		t.Errorf("view should report no revealed card, got %d", *v.Revealed)
	}

	must(t, s.ToggleReveal(1))
	if !s.Cards[1].Revealed || s.Revealed != 1 {
		t.Errorf("card 1 should now be revealed")
	}

	if err := s.ToggleReveal(4); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("out of range toggle: expected ErrInvalidInput, got %v", err)
	}
}

func TestResetAfterReveal(t *testing.T) {
	s := playToReveal(t, 5)
	must(t, s.ToggleReveal(2))

	s.Reset()

	want := View{
		Step:        StepCount,
		PlayerCount: 3,
		Players:     []string{},
		Weapons:     []string{},
		Locations:   []string{},
		Cards:       []Card{},
		CanAdvance:  true,
	}

	if got := s.View(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if s.rng == nil {
		t.Error("reset dropped the random source")
	}
}

func TestViewIsACopy(t *testing.T) {
	s := playToReveal(t, 3)

	v := s.View()
	v.Cards[0].Revealed = true
	v.Players[0] = "changed"

	if s.Cards[0].Revealed || s.Players[0] == "changed" {
		t.Error("mutating the view changed the session")
	}
}

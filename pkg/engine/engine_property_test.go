package engine

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Guivernoir/CISO-sim/pkg/catalog"
)

// TestRandomPlaythroughsStayValid walks the shipped scenario with arbitrary choices.
// Every intermediate state must validate and the integrity score never recovers.
func TestRandomPlaythroughsStayValid(t *testing.T) {
	ctx := context.Background()
	e, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	cat, err := catalog.Default(ctx)
	if err != nil {
		t.Fatal(err)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 150
	properties := gopter.NewProperties(parameters)

	properties.Property("valid states, non-increasing score", prop.ForAll(
		func(picks []int) bool {
			s, err := e.NewGame(cat.FinalTurn())
			if err != nil {
				return false
			}
			last := e.Score(s)
			for _, pick := range picks {
				d, err := cat.ForTurn(ctx, s.Turn)
				if err != nil {
					return false
				}
				s, _, err = e.AdvanceTurn(ctx, s, d, d.Choices[pick%len(d.Choices)].ID)
				if err != nil {
					return false
				}
				if s.Validate(e.Config().Bounds) != nil {
					return false
				}
				score := e.Score(s)
				if score > last {
					return false
				}
				last = score
				if x := e.TotalExposure(s); x < 0 || x > 500 {
					return false
				}
			}
			return s.Ended() && s.Ending != nil
		},
		gen.SliceOfN(8, gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}

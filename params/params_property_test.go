//go:build property
// +build property

package params

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestBonusBpsMonotonic(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())
	p := Default()

	properties.Property("a larger deposit never earns a lower rate", prop.ForAll(
		func(a, b int64) bool {
			if a > b {
				a, b = b, a
			}
			return p.BonusBps(a) <= p.BonusBps(b)
		},
		gen.Int64Range(0, 1<<32),
		gen.Int64Range(0, 1<<32),
	))

	properties.TestingRun(t)
}

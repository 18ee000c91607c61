package core

import (
	"math"
	"reflect"

	"github.com/encodeous/rplof/state"
)

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// saturate16 clamps a metric into a 16 bit wire field.
func saturate16(v uint32) uint16 {
	return uint16(min(v, math.MaxUint16))
}

func Get[T state.NyModule](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}

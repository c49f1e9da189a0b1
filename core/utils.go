package core

import (
	"reflect"

	"github.com/encodeous/dvr/state"
)

// AddMetric adds two costs, saturating at state.MaxMetric.
func AddMetric(a, b state.Metric) state.Metric {
	return state.Metric(min(uint64(state.MaxMetric), uint64(a)+uint64(b)))
}

func Get[T state.NyModule](s *state.State) T {
	t := reflect.TypeFor[T]()
	return s.Modules[t.String()].(T)
}

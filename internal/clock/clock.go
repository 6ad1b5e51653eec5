package clock

import (
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return System() }),
)

// Clock abstracts wall time so day-keyed quota windows can be tested.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func System() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// DayKey formats t as the UTC calendar day used for usage windows.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

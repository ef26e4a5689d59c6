package stdlib

import (
	"log"
	"time"

	"github.com/lemonberrylabs/minic/pkg/types"
)

// timeNow is replaced in tests.
var timeNow = time.Now

// registerSys registers the clock and logging builtins.
func (r *Registry) registerSys() {
	r.Register("now", sysNow)
	r.Register("trace", sysTrace)
}

// sysNow returns seconds since the Unix epoch, with a fractional part.
func sysNow(args []float64) (float64, error) {
	if err := requireArgs("now", args, 0); err != nil {
		return 0, err
	}
	return float64(timeNow().UnixNano()) / float64(time.Second), nil
}

// sysTrace logs its argument and returns it unchanged, so it can wrap any
// subexpression.
func sysTrace(args []float64) (float64, error) {
	if err := requireArgs("trace", args, 1); err != nil {
		return 0, err
	}
	log.Printf("trace: %s", types.FormatNumber(args[0]))
	return args[0], nil
}

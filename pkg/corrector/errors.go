package corrector

import (
	"fmt"

	"github.com/charlie0129/lcqe/pkg/errdefs"
	"github.com/charlie0129/lcqe/pkg/result"
)

// ConvergenceError is returned when the iteration cap is reached before the
// current delta drops below the tolerance. Partial is the last iterate; a
// caller may accept it as a best-effort answer.
type ConvergenceError struct {
	Iterations int
	Delta      float64
	Tolerance  float64
	Currents   []float64
	Partial    *result.Set
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%v: max current delta %g mA/cm2 after %d iterations, tolerance %g mA/cm2",
		errdefs.ErrConvergence, e.Delta, e.Iterations, e.Tolerance)
}

func (e *ConvergenceError) Is(target error) bool { return target == errdefs.ErrConvergence }

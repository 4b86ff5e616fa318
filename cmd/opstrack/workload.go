package main

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"codeberg.org/mutker/opstrack/internal/errors"
	"codeberg.org/mutker/opstrack/internal/logger"
	"codeberg.org/mutker/opstrack/internal/perf"
)

const (
	calculatorComponent = "Calculator"
	operandRange        = 10
)

type operation struct {
	name string
	fn   func(a, b float64) (float64, error)
}

var operations = []operation{
	{"Add", add},
	{"Subtract", subtract},
	{"Multiply", multiply},
	{"Divide", divide},
	{"Modulo", modulo},
	{"Exponent", exponent},
	{"Sqrt", func(a, _ float64) (float64, error) { return sqrt(a) }},
}

func add(a, b float64) (float64, error)      { return a + b, nil }
func subtract(a, b float64) (float64, error) { return a - b, nil }
func multiply(a, b float64) (float64, error) { return a * b, nil }

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New().New(errors.ErrDivideByZero)
	}

	return a / b, nil
}

func modulo(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errors.New().WithMessage(errors.ErrDivideByZero, "Cannot perform modulo with zero")
	}

	return math.Mod(a, b), nil
}

func exponent(a, b float64) (float64, error) {
	return math.Pow(a, b), nil
}

func sqrt(a float64) (float64, error) {
	if a < 0 {
		return 0, errors.New().WithMessage(errors.ErrDomain, "Cannot take the square root of a negative number").WithData(a)
	}

	return math.Sqrt(a), nil
}

// worker runs random calculator operations through the tracker at rate
// operations per second until ctx is done.
type worker struct {
	id      int
	tracker *perf.Tracker
	rng     *rand.Rand
	log     logger.Logger
}

func newWorker(id int, tracker *perf.Tracker, seed uint64) *worker {
	return &worker{
		id:      id,
		tracker: tracker,
		rng:     rand.New(rand.NewPCG(seed, uint64(id))),
		log:     logger.Default(),
	}
}

func (w *worker) run(ctx context.Context, rate int) error {
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.step(ctx)
		}
	}
}

func (w *worker) step(ctx context.Context) {
	op := operations[w.rng.IntN(len(operations))]
	a, b := w.operand(), w.operand()

	result, err := perf.Track(ctx, w.tracker, calculatorComponent, op.name, func(context.Context) (float64, error) {
		return op.fn(a, b)
	})
	if err != nil {
		// already recorded by the tracker
		return
	}

	w.log.Debug().
		Int("worker", w.id).
		Str("operation", op.name).
		Float64("a", a).
		Float64("b", b).
		Float64("result", result).
		Msg("")
}

// operand returns a whole number in [-operandRange, operandRange], so zero
// and negative inputs come up often enough to exercise the failure paths.
func (w *worker) operand() float64 {
	return float64(w.rng.IntN(2*operandRange+1) - operandRange)
}

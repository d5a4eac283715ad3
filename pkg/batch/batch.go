// Package batch models sequential batch operations whose items can fail
// independently.
package batch

import (
	"fmt"

	"github.com/ehr/revcycle/internal/platform/apperr"
)

// Failure pairs an input item with the error it produced.
type Failure[I any] struct {
	Item  I      `json:"item"`
	Error string `json:"error"`
	Type  string `json:"type"`
}

// Result is the fold of a batch: every input lands in exactly one of the two
// slices.
type Result[I, O any] struct {
	Successes []O          `json:"successes"`
	Failures  []Failure[I] `json:"failures"`
}

// Run applies fn to each item in order. A failing or panicking item is
// recorded and the loop moves on.
func Run[I, O any](items []I, fn func(I) (O, error)) Result[I, O] {
	res := Result[I, O]{
		Successes: make([]O, 0, len(items)),
		Failures:  []Failure[I]{},
	}
	for _, item := range items {
		out, err := safeCall(item, fn)
		if err != nil {
			res.Failures = append(res.Failures, Failure[I]{
				Item:  item,
				Error: apperr.PublicMessage(err),
				Type:  string(apperr.TypeOf(err)),
			})
			continue
		}
		res.Successes = append(res.Successes, out)
	}
	return res
}

func safeCall[I, O any](item I, fn func(I) (O, error)) (out O, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperr.NewBatchItemError(fmt.Sprint(item), apperr.Normalize(r))
		}
	}()
	return fn(item)
}

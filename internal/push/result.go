package push

import (
	"errors"
	"net/http"
)

type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeFailed
)

func (o Outcome) String() string {
	if o == OutcomeDelivered {
		return "delivered"
	}
	return "failed"
}

// Result is the outcome of delivering one payload to one subscription.
type Result struct {
	Endpoint string
	Outcome  Outcome
	Status   int
	Err      error
}

// Expired reports whether the push service signalled that the subscription is
// gone for good.
func (r Result) Expired() bool {
	if r.Outcome != OutcomeFailed {
		return false
	}
	if r.Status != 0 {
		return r.Status == http.StatusGone
	}
	// Transport errors carry no expiry signal, whatever their text says.
	return errors.Is(r.Err, ErrSubscriptionGone)
}

// Report aggregates the results of one dispatch.
type Report struct {
	Sent    int
	Failed  int
	Pruned  int
	Errors  []string
	Results []Result
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	if res.Outcome == OutcomeDelivered {
		r.Sent++
		return
	}
	r.Failed++
	if res.Err != nil {
		r.Errors = append(r.Errors, res.Err.Error())
	}
}

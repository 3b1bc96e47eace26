package submitter

import (
	"context"
	"time"

	errorsmod "cosmossdk.io/errors"
	lop "github.com/samber/lo/parallel"

	"github.com/GPTx-global/flightsurety/oracle/chain"
	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/matcher"
	"github.com/GPTx-global/flightsurety/oracle/status"
	"github.com/GPTx-global/flightsurety/oracle/telemetry"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Result is the outcome of one oracle's submission.
type Result struct {
	Oracle   types.RegisteredOracle
	Response types.StatusResponse
	Err      error
}

// Submitter answers requests on behalf of matched oracles.
type Submitter struct {
	responder chain.Responder
	source    status.Source
}

func New(responder chain.Responder, source status.Source) *Submitter {
	return &Submitter{
		responder: responder,
		source:    source,
	}
}

// Submit sends one response per oracle, each in its own goroutine, and returns once all have resolved.
// Results are in the order of oracles. A failed submission never affects the others and is not retried.
func (s *Submitter) Submit(ctx context.Context, req types.StatusRequest, oracles []types.RegisteredOracle) []Result {
	return lop.Map(oracles, func(oracle types.RegisteredOracle, _ int) Result {
		return s.submitOne(ctx, req, oracle)
	})
}

func (s *Submitter) submitOne(ctx context.Context, req types.StatusRequest, oracle types.RegisteredOracle) Result {
	result := Result{Oracle: oracle}

	if !matcher.Eligible(req, oracle) {
		result.Err = errorsmod.Wrapf(types.ErrIneligible, "oracle %s indexes %s, request index %d", oracle.Address.Hex(), oracle.Indexes, req.Index)
		log.Errorf("refusing to submit: %v", result.Err)
		telemetry.IncrCounter(telemetry.KeySubmissionFailure)
		return result
	}

	result.Response = types.NewStatusResponse(req, s.source.Generate(), oracle.Address)

	start := time.Now()
	err := s.responder.SubmitOracleResponse(ctx, result.Response)
	telemetry.MeasureSince(telemetry.KeySubmissionLatency, start)
	if err != nil {
		result.Err = errorsmod.Wrapf(err, "oracle %s", oracle.Address.Hex())
		log.Errorf("submission failed: %s oracle=%s status=%s: %v", req, oracle.Address.Hex(), result.Response.StatusCode, err)
		telemetry.IncrCounter(telemetry.KeySubmissionFailure)
		return result
	}

	log.Infof("submitted: %s oracle=%s status=%s", req, oracle.Address.Hex(), result.Response.StatusCode)
	telemetry.IncrCounter(telemetry.KeySubmissionSuccess)

	return result
}

// Failed counts the results that carry an error.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

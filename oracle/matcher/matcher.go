// Package matcher decides which registered oracles may answer a request.
package matcher

import (
	"github.com/samber/lo"

	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Match returns the oracles whose indexes contain req.Index, preserving input order.
func Match(req types.StatusRequest, oracles []types.RegisteredOracle) []types.RegisteredOracle {
	return lo.Filter(oracles, func(o types.RegisteredOracle, _ int) bool {
		return Eligible(req, o)
	})
}

// Eligible reports whether oracle may respond to req.
func Eligible(req types.StatusRequest, oracle types.RegisteredOracle) bool {
	return oracle.Indexes.Contains(req.Index)
}

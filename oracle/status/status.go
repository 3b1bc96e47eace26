package status

import (
	"math/rand"
	"sync"
	"time"

	"github.com/GPTx-global/flightsurety/oracle/types"
)

// Source picks the status an oracle reports.
type Source interface {
	Generate() types.StatusCode
}

// Generator draws uniformly from a fixed set of status codes.
type Generator struct {
	mu    sync.Mutex
	rnd   *rand.Rand
	codes []types.StatusCode
}

var _ Source = (*Generator)(nil)

// NewGenerator is deterministic for a given seed. An empty codes falls back to every known code.
func NewGenerator(codes []types.StatusCode, seed int64) *Generator {
	if len(codes) == 0 {
		codes = types.AllStatusCodes()
	}

	return &Generator{
		rnd:   rand.New(rand.NewSource(seed)),
		codes: append([]types.StatusCode(nil), codes...),
	}
}

func NewRandomGenerator(codes []types.StatusCode) *Generator {
	return NewGenerator(codes, time.Now().UnixNano())
}

func (g *Generator) Generate() types.StatusCode {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.codes[g.rnd.Intn(len(g.codes))]
}

func (g *Generator) Codes() []types.StatusCode {
	return append([]types.StatusCode(nil), g.codes...)
}

// Fixed always reports the same code.
type Fixed types.StatusCode

func (f Fixed) Generate() types.StatusCode {
	return types.StatusCode(f)
}

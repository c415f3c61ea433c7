// Package payload builds the pool of randomized vector search bodies that
// workers draw from.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
)

// Options describe the search bodies in the pool.
type Options struct {
	CollectionName string
	VectorField    string
	Dim            int
	TopK           int
	Size           int
	Seed           int64
}

// searchRequest mirrors the body of POST /v2/vectordb/entities/search.
type searchRequest struct {
	CollectionName   string         `json:"collectionName"`
	AnnsField        string         `json:"annsField"`
	Limit            int            `json:"limit"`
	ConsistencyLevel string         `json:"consistency_level"`
	Data             [][]float32    `json:"data"`
	SearchParams     map[string]any `json:"searchParams"`
}

// Pool holds immutable request bodies. It is safe for concurrent reads.
type Pool struct {
	bodies [][]byte
}

// NewPool generates opt.Size random search bodies.
func NewPool(opt Options) (*Pool, error) {
	if opt.Size < 1 {
		return nil, errors.New("pool size must be >= 1")
	}
	if opt.Dim < 1 {
		return nil, errors.New("vector dimension must be >= 1")
	}

	rng := rand.New(rand.NewSource(opt.Seed))
	bodies := make([][]byte, opt.Size)
	for i := range bodies {
		req := searchRequest{
			CollectionName:   opt.CollectionName,
			AnnsField:        opt.VectorField,
			Limit:            opt.TopK,
			ConsistencyLevel: "Bounded",
			Data:             [][]float32{randomVector(rng, opt.Dim)},
			SearchParams:     map[string]any{"params": map[string]any{"level": 1}},
		}
		body, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("encode search body %d: %w", i, err)
		}
		bodies[i] = body
	}
	return &Pool{bodies: bodies}, nil
}

// fromBodies wraps pre-built bodies. The slices must not be mutated afterwards.
func fromBodies(bodies [][]byte) (*Pool, error) {
	if len(bodies) == 0 {
		return nil, errors.New("pool needs at least one body")
	}
	return &Pool{bodies: append([][]byte(nil), bodies...)}, nil
}

func randomVector(rng *rand.Rand, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = rng.Float32()
	}
	return vec
}

// Len returns the number of bodies in the pool.
func (p *Pool) Len() int {
	return len(p.bodies)
}

// At returns the body at index i.
func (p *Pool) At(i int) []byte {
	return p.bodies[i]
}

// PickIndex draws a uniformly random index using the caller's generator.
// Each worker passes its own *rand.Rand so no generator is shared.
func (p *Pool) PickIndex(rng *rand.Rand) int {
	return rng.Intn(len(p.bodies))
}

// Pick returns a uniformly random body.
func (p *Pool) Pick(rng *rand.Rand) []byte {
	return p.bodies[p.PickIndex(rng)]
}

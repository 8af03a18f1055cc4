package pcg

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Model is the compile-time aggregate described in spec.md §9 "Global
// mutable id allocators": it owns every monotonic id counter (layers,
// tensors, operators, parallel tensors, PCGs) and threads them through
// every constructor, instead of process-wide statics.
type Model struct {
	// BuildID is an external correlation id, purely additive: it is
	// stamped into serialize's (C10) header so two compiles of the same
	// graph can be told apart by an external harness, and is never
	// consulted by core logic.
	BuildID uuid.UUID

	Logger zerolog.Logger

	Graph *PCG

	nextLayerID          int
	nextTensorID         int
	nextOperatorID       int
	nextParallelTensorID int
	nextPCGID            int
}

// ModelOption configures a Model at construction time.
type ModelOption func(*Model)

// WithLogger attaches a structured logger; the default is zerolog.Nop(),
// so compiling without one costs nothing beyond the level check zerolog
// already performs.
func WithLogger(logger zerolog.Logger) ModelOption {
	return func(m *Model) { m.Logger = logger }
}

// NewModel creates an empty Model ready to receive a lifted PCG.
func NewModel(opts ...ModelOption) *Model {
	m := &Model{
		BuildID: uuid.New(),
		Logger:  zerolog.Nop(),
		Graph:   NewPCG(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NextLayerID returns the next unique logical-layer id.
func (m *Model) NextLayerID() int {
	id := m.nextLayerID
	m.nextLayerID++
	return id
}

// NextTensorID returns the next unique logical-tensor id.
func (m *Model) NextTensorID() int {
	id := m.nextTensorID
	m.nextTensorID++
	return id
}

// NextOperatorID returns the next unique operator id.
func (m *Model) NextOperatorID() int {
	id := m.nextOperatorID
	m.nextOperatorID++
	return id
}

// NextParallelTensorID returns the next unique parallel-tensor id.
func (m *Model) NextParallelTensorID() int {
	id := m.nextParallelTensorID
	m.nextParallelTensorID++
	return id
}

// NextPCGID returns the next unique compiled-graph id, used when a model
// maintains more than one PCG instance (e.g. forward and backward graphs
// sharing one operator id space).
func (m *Model) NextPCGID() int {
	id := m.nextPCGID
	m.nextPCGID++
	return id
}

// NewOperator allocates a fresh operator id and appends the operator to
// the model's graph. Callers fill in Inputs/Outputs/Weights before
// appending any operator that references it.
func (m *Model) NewOperator(op *Operator) *Operator {
	op.ID = m.NextOperatorID()
	m.Graph.AddOperator(op)
	return op
}

// NewParallelTensor allocates a fresh parallel-tensor id owned by
// (ownerOpID, ownerIdx).
func (m *Model) NewParallelTensor(ownerOpID, ownerIdx int) *ParallelTensor {
	return &ParallelTensor{
		ID:        m.NextParallelTensorID(),
		OwnerOpID: ownerOpID,
		OwnerIdx:  ownerIdx,
	}
}

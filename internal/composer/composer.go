// Package composer assembles exam variants from a question pool by
// stratified sampling over (topic, level) requirements.
package composer

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/toanlab/lms-backend/internal/model"
)

// Composer errors.
var (
	ErrEmptyStructure      = errors.New("exam structure has no requirements")
	ErrRequirementNotFound = errors.New("requirement not found")
	ErrInvalidVariantCount = errors.New("variant count must be positive")
	ErrNoRecipients        = errors.New("no recipients given")
	ErrPoolShrinkage       = errors.New("pool shrank below the requested structure")
)

// CapacityReason explains why a requirement was rejected.
type CapacityReason string

const (
	CapacityInvalidCount CapacityReason = "invalid_count"
	CapacityMissingTopic CapacityReason = "missing_topic"
	CapacityInvalidLevel CapacityReason = "invalid_level"
	CapacityInsufficient CapacityReason = "insufficient"
)

// CapacityError is returned by AddRequirement. The structure is left unchanged.
type CapacityError struct {
	Reason    CapacityReason
	Topic     string
	Level     model.Level
	Requested int
	Available int
}

func (e *CapacityError) Error() string {
	switch e.Reason {
	case CapacityInvalidCount:
		return fmt.Sprintf("requirement count must be positive, got %d", e.Requested)
	case CapacityMissingTopic:
		return "requirement topic is required"
	case CapacityInvalidLevel:
		return fmt.Sprintf("unknown level %q", e.Level)
	}
	return fmt.Sprintf("only %d questions available for %s / %s, requested %d",
		e.Available, e.Topic, e.Level, e.Requested)
}

// ShrinkageError lists the shortfalls of the first short variant under strict fill.
type ShrinkageError struct {
	Label      string
	Shortfalls []model.Shortfall
}

func (e *ShrinkageError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = fmt.Sprintf("%s / %s: %d of %d", s.Topic, s.Level, s.Delivered, s.Requested)
	}
	return fmt.Sprintf("%s: %s", e.Label, strings.Join(parts, ", "))
}

func (e *ShrinkageError) Is(target error) bool { return target == ErrPoolShrinkage }

// PoolReader is the slice of pool behaviour the composer needs.
// Match must return a slice the caller owns.
type PoolReader interface {
	Match(grade int, topic string, level model.Level) []model.Question
}

// Option configures a Composer.
type Option func(*Composer)

// WithSeed makes generation reproducible.
func WithSeed(seed uint64) Option {
	return func(c *Composer) { c.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// WithStrictFill turns a draw-time shortfall into ErrPoolShrinkage.
func WithStrictFill() Option {
	return func(c *Composer) { c.strict = true }
}

// Composer holds one pending exam structure for a grade.
type Composer struct {
	mu     sync.Mutex
	grade  int
	pool   PoolReader
	reqs   []model.Requirement
	rng    *rand.Rand
	strict bool
}

// New creates an empty structure for grade backed by pool.
func New(grade int, pool PoolReader, opts ...Option) *Composer {
	now := uint64(time.Now().UnixNano())
	c := &Composer{
		grade: grade,
		pool:  pool,
		rng:   rand.New(rand.NewPCG(now, now>>1|1)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Composer) Grade() int { return c.grade }

// SetPool swaps the snapshot used for validation and drawing.
func (c *Composer) SetPool(pool PoolReader) {
	c.mu.Lock()
	c.pool = pool
	c.mu.Unlock()
}

// AddRequirement validates and appends a requirement, returning it and the
// new total. Questions already reserved by requirements with the same topic
// and level are not counted as available.
func (c *Composer) AddRequirement(topic string, level model.Level, count int) (model.Requirement, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if count <= 0 {
		return model.Requirement{}, c.total(), &CapacityError{Reason: CapacityInvalidCount, Topic: topic, Level: level, Requested: count}
	}
	if strings.TrimSpace(topic) == "" {
		return model.Requirement{}, c.total(), &CapacityError{Reason: CapacityMissingTopic, Level: level, Requested: count}
	}
	if !level.Valid() {
		return model.Requirement{}, c.total(), &CapacityError{Reason: CapacityInvalidLevel, Topic: topic, Level: level, Requested: count}
	}

	available := len(c.pool.Match(c.grade, topic, level))
	for _, r := range c.reqs {
		if r.Topic == topic && r.Level == level {
			available -= r.Count
		}
	}
	if available < count {
		return model.Requirement{}, c.total(), &CapacityError{
			Reason:    CapacityInsufficient,
			Topic:     topic,
			Level:     level,
			Requested: count,
			Available: max(available, 0),
		}
	}

	req := model.Requirement{ID: uuid.New(), Topic: topic, Level: level, Count: count}
	c.reqs = append(c.reqs, req)
	return req, c.total(), nil
}

// RemoveRequirement drops a requirement by id and returns the new total.
func (c *Composer) RemoveRequirement(id uuid.UUID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, r := range c.reqs {
		if r.ID == id {
			c.reqs = append(c.reqs[:i], c.reqs[i+1:]...)
			return c.total(), nil
		}
	}
	return c.total(), ErrRequirementNotFound
}

// Requirements returns a copy of the pending structure.
func (c *Composer) Requirements() []model.Requirement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Requirement(nil), c.reqs...)
}

// Total is the sum of requirement counts.
func (c *Composer) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total()
}

// Reset clears the structure.
func (c *Composer) Reset() {
	c.mu.Lock()
	c.reqs = nil
	c.mu.Unlock()
}

func (c *Composer) total() int {
	n := 0
	for _, r := range c.reqs {
		n += r.Count
	}
	return n
}

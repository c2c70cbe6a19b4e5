// Package bank holds immutable question pool snapshots.
package bank

import (
	"sort"

	"github.com/toanlab/lms-backend/internal/model"
)

type poolKey struct {
	grade int
	topic string
	level model.Level
}

// Pool is a read-only snapshot of bank questions indexed by grade, topic and level.
// It is safe for concurrent use because nothing mutates it after NewPool.
type Pool struct {
	questions []model.Question
	byKey     map[poolKey][]int
	byID      map[string]int
}

// NewPool indexes a copy of questions. Later duplicates of an id are ignored.
func NewPool(questions []model.Question) *Pool {
	p := &Pool{
		questions: make([]model.Question, 0, len(questions)),
		byKey:     make(map[poolKey][]int),
		byID:      make(map[string]int, len(questions)),
	}
	for _, q := range questions {
		if _, dup := p.byID[q.ID]; dup {
			continue
		}
		idx := len(p.questions)
		p.questions = append(p.questions, q)
		p.byID[q.ID] = idx
		k := poolKey{q.Grade, q.Topic, q.Level}
		p.byKey[k] = append(p.byKey[k], idx)
	}
	return p
}

// Match returns a fresh slice of questions for grade, topic and level.
func (p *Pool) Match(grade int, topic string, level model.Level) []model.Question {
	idxs := p.byKey[poolKey{grade, topic, level}]
	out := make([]model.Question, len(idxs))
	for i, idx := range idxs {
		out[i] = p.questions[idx]
	}
	return out
}

// Count is len(Match(...)) without the copy.
func (p *Pool) Count(grade int, topic string, level model.Level) int {
	return len(p.byKey[poolKey{grade, topic, level}])
}

// Get looks up a question by id.
func (p *Pool) Get(id string) (model.Question, bool) {
	idx, ok := p.byID[id]
	if !ok {
		return model.Question{}, false
	}
	return p.questions[idx], true
}

// Lookup resolves ids in order. Unknown ids are returned separately.
func (p *Pool) Lookup(ids []string) ([]model.Question, []string) {
	found := make([]model.Question, 0, len(ids))
	var missing []string
	for _, id := range ids {
		q, ok := p.Get(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		found = append(found, q)
	}
	return found, missing
}

// Topics lists the distinct topics available for grade, sorted.
func (p *Pool) Topics(grade int) []string {
	seen := make(map[string]struct{})
	for k := range p.byKey {
		if k.grade == grade {
			seen[k.topic] = struct{}{}
		}
	}
	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Questions returns every question for grade in load order.
func (p *Pool) Questions(grade int) []model.Question {
	var out []model.Question
	for _, q := range p.questions {
		if q.Grade == grade {
			out = append(out, q)
		}
	}
	return out
}

// Len is the number of distinct questions.
func (p *Pool) Len() int { return len(p.questions) }

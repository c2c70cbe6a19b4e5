package composer

import (
	"fmt"
	"strings"

	"github.com/toanlab/lms-backend/internal/model"
)

// firstBatchCode is the number of the first batch variant ("Đề 101").
const firstBatchCode = 101

type modeKind int

const (
	modeBatch modeKind = iota
	modePersonalized
)

// Mode selects how many variants Generate produces and how they are labelled.
type Mode struct {
	kind       modeKind
	count      int
	recipients []string
}

// Batch produces n independent variants labelled "Đề 101", "Đề 102", ...
func Batch(n int) Mode { return Mode{kind: modeBatch, count: n} }

// Personalized produces one variant per recipient, labelled with the recipient's name.
func Personalized(recipients []string) Mode {
	return Mode{kind: modePersonalized, recipients: recipients}
}

// ParseRecipients splits a newline separated list, dropping blank lines.
func ParseRecipients(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			out = append(out, name)
		}
	}
	return out
}

type label struct {
	label string
	title string
}

func (m Mode) labels() ([]label, error) {
	switch m.kind {
	case modeBatch:
		if m.count <= 0 {
			return nil, ErrInvalidVariantCount
		}
		out := make([]label, m.count)
		for i := range out {
			code := fmt.Sprintf("Đề %d", firstBatchCode+i)
			out[i] = label{label: code, title: code + " - Tổng hợp"}
		}
		return out, nil
	case modePersonalized:
		var out []label
		for _, r := range m.recipients {
			if name := strings.TrimSpace(r); name != "" {
				out = append(out, label{label: name, title: "Đề của: " + name})
			}
		}
		if len(out) == 0 {
			return nil, ErrNoRecipients
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown generate mode %d", m.kind)
}

// Generate draws one question set per variant. Each requirement is sampled
// uniformly without replacement within the variant, the draws are
// concatenated and the whole set is shuffled once. Variants are independent.
//
// When the pool no longer holds enough matches for a requirement, every
// available match is used and the shortfall is reported on the variant.
// With WithStrictFill the shortfall is returned as a *ShrinkageError instead.
func (c *Composer) Generate(mode Mode) ([]model.ExamVariant, error) {
	labels, err := mode.labels()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.reqs) == 0 {
		return nil, ErrEmptyStructure
	}

	variants := make([]model.ExamVariant, 0, len(labels))
	for _, l := range labels {
		questions, shortfalls := c.draw()
		if len(shortfalls) > 0 && c.strict {
			return nil, &ShrinkageError{Label: l.label, Shortfalls: shortfalls}
		}
		variants = append(variants, model.ExamVariant{
			Label:      l.label,
			Title:      l.title,
			Grade:      c.grade,
			Questions:  questions,
			Shortfalls: shortfalls,
		})
	}
	return variants, nil
}

// draw builds one variant. Caller holds c.mu.
func (c *Composer) draw() ([]model.Question, []model.Shortfall) {
	used := make(map[string]struct{}, c.total())
	picked := make([]model.Question, 0, c.total())
	var shortfalls []model.Shortfall

	for _, r := range c.reqs {
		matches := c.pool.Match(c.grade, r.Topic, r.Level)
		candidates := matches[:0]
		for _, q := range matches {
			if _, dup := used[q.ID]; !dup {
				candidates = append(candidates, q)
			}
		}

		c.rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})

		take := min(r.Count, len(candidates))
		for _, q := range candidates[:take] {
			used[q.ID] = struct{}{}
			picked = append(picked, q)
		}
		if take < r.Count {
			shortfalls = append(shortfalls, model.Shortfall{
				RequirementID: r.ID,
				Topic:         r.Topic,
				Level:         r.Level,
				Requested:     r.Count,
				Delivered:     take,
			})
		}
	}

	c.rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked, shortfalls
}

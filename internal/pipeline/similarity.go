package pipeline

import (
	"context"
	"fmt"
)

// Acceptance thresholds. A photograph suffers lighting, angle and paper
// distortion against the template, an e-certificate should match it tightly.
const (
	HumanThreshold        = 0.58
	ECertificateThreshold = 0.90
)

// Passes reports whether score clears threshold. The boundary itself fails.
func Passes(score, threshold float64) bool {
	return score > threshold
}

// screen compares every classified certificate with the reference template.
// A template that cannot be loaded fails the whole stage.
func (p *Pipeline) screen(_ context.Context, st *State) error {
	ref, err := p.scorer.Reference(p.cfg.TemplatePath)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNoTemplate, p.cfg.TemplatePath, err)
	}
	p.screenAll(st, ref, st.Human(), HumanThreshold)
	p.screenAll(st, ref, st.ECerti(), ECertificateThreshold)
	return nil
}

func (p *Pipeline) screenAll(st *State, ref Reference, ids []string, threshold float64) {
	for _, id := range ids {
		c, _ := st.Certificate(id)
		score, err := ref.Similarity(c.Path)
		if err != nil {
			st.reject(id)
			st.Record(StageSimilarity, "Could not score %s, rejecting: %v", c.Name, err)
			continue
		}
		st.setSimilarity(id, score)
		if Passes(score, threshold) {
			st.accept(id)
		} else {
			st.reject(id)
		}
		st.Record(StageSimilarity, "%s similarity %.3f (threshold %.2f)", c.Name, score, threshold)
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"golang.org/x/sync/errgroup"
)

// extract reads the text of every provisionally accepted certificate.
// An error return means the engine failed for the whole batch.
func (p *Pipeline) extract(ctx context.Context, st *State) error {
	ids := st.Accepted()
	st.setOCRTexts(make(map[string]string))
	if len(ids) == 0 {
		return nil
	}

	reader, err := p.ocr.NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize OCR engine: %w", err)
	}
	defer reader.Close()

	texts := make([]string, len(ids))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.Workers)
	for i, id := range ids {
		c, _ := st.Certificate(id)
		eg.Go(func() error {
			spans, err := reader.ReadText(gctx, c.Path)
			if err != nil {
				if errors.Is(err, ErrEngineUnavailable) {
					return err
				}
				st.Record(StageExtract, "OCR failed for %s: %v", c.Name, err)
				return nil
			}
			texts[i] = JoinSpans(spans)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	out := make(map[string]string, len(ids))
	for i, id := range ids {
		out[id] = texts[i]
	}
	st.setOCRTexts(out)
	st.Record(StageExtract, "Extracted text from %d certificate(s)", len(ids))
	return nil
}

// JoinSpans concatenates the detected spans with single spaces.
func JoinSpans(spans iter.Seq[string]) string {
	var parts []string
	for s := range spans {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

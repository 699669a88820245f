package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/certificateflow/internal/imaging"
	"github.com/Lllllllleong/certificateflow/internal/models"
	"golang.org/x/sync/errgroup"
)

// ecertificateMarker is the label fragment that marks a digitally generated certificate.
const ecertificateMarker = "ecertificate"

// IsECertificate interprets a classification label.
func IsECertificate(label string) bool {
	return strings.Contains(strings.ToLower(label), ecertificateMarker)
}

type classification struct {
	name  string
	label string
	err   error
}

// classify labels every normalized image and crops the photographed ones.
func (p *Pipeline) classify(ctx context.Context, st *State, ws Workspace) error {
	files, err := ws.ProcessedImages()
	if err != nil {
		return fmt.Errorf("failed to list processed certificates: %w", err)
	}
	if len(files) == 0 {
		st.Record(StageClassify, "No processed PNG files found.")
		return nil
	}

	results := make([]classification, len(files))
	var eg errgroup.Group
	eg.SetLimit(p.cfg.Workers)
	for i, name := range files {
		eg.Go(func() error {
			results[i] = p.classifyOne(ctx, name, filepath.Join(ws.Processed, name))
			return nil
		})
	}
	_ = eg.Wait()

	var human, ecerti []string
	for _, r := range results {
		if r.err != nil {
			p.logger.Warn("Skipping certificate after classification error.", "file", r.name, "error", r.err)
			st.Record(StageClassify, "Error processing %s: %v", r.name, r.err)
			st.skip(r.name)
			continue
		}
		kind := models.KindHuman
		if IsECertificate(r.label) {
			kind = models.KindECertificate
		}
		c := st.register(models.Certificate{
			Name:   r.name,
			Path:   filepath.Join(ws.Processed, r.name),
			Source: r.name,
			Kind:   kind,
		})
		if kind == models.KindECertificate {
			ecerti = append(ecerti, c.ID)
		} else {
			human = append(human, c.ID)
		}
		st.Record(StageClassify, "Certificate: %s | Classification: %s", r.name, strings.TrimSpace(r.label))
	}

	human = p.cropHuman(ctx, st, ws, human)
	st.setLists(human, ecerti)
	p.logger.Info("Classification complete.", "human", len(human), "ecertificates", len(ecerti))
	return nil
}

func (p *Pipeline) classifyOne(ctx context.Context, name, path string) classification {
	preview, err := imaging.Preview(path)
	if err != nil {
		return classification{name: name, err: fmt.Errorf("failed to prepare preview: %w", err)}
	}
	label, err := p.judge.Classify(ctx, ImageInput{Name: name, Data: preview, MIMEType: "image/jpeg"})
	if err != nil {
		return classification{name: name, err: fmt.Errorf("classification call failed: %w", err)}
	}
	return classification{name: name, label: label}
}

// cropHuman replaces each photographed certificate with its detected crops.
// Detector failures keep the original image. Crops are written to a private
// directory per certificate and then moved into the processed set under
// names no other image holds.
func (p *Pipeline) cropHuman(ctx context.Context, st *State, ws Workspace, ids []string) []string {
	crops := make([][]string, len(ids))
	var eg errgroup.Group
	eg.SetLimit(p.cfg.Workers)
	for i, id := range ids {
		c, _ := st.Certificate(id)
		eg.Go(func() error {
			dir := filepath.Join(ws.Crops, id)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				p.logger.Warn("Failed to create crop directory, keeping original.", "file", c.Name, "error", err)
				return nil
			}
			paths, err := p.detector.DetectAndCrop(ctx, c.Path, dir)
			if err != nil {
				p.logger.Warn("Detection failed, keeping original.", "file", c.Name, "error", err)
				return nil
			}
			for j, path := range paths {
				if !filepath.IsAbs(path) {
					paths[j] = filepath.Join(dir, path)
				}
			}
			crops[i] = paths
			return nil
		})
	}
	_ = eg.Wait()

	final := make([]string, 0, len(ids))
	for i, id := range ids {
		orig, _ := st.Certificate(id)
		var moved []string
		for _, path := range crops[i] {
			dst, err := claim(path, ws.Processed)
			if err != nil {
				p.logger.Warn("Failed to move crop into the working set.", "file", filepath.Base(path), "error", err)
				continue
			}
			moved = append(moved, dst)
		}
		if len(moved) == 0 {
			st.Record(StageClassify, "No certificates detected in %s, keeping original", orig.Name)
			final = append(final, id)
			continue
		}
		if err := os.Remove(orig.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("Failed to remove cropped original.", "file", orig.Name, "error", err)
		}
		st.forget(id)
		for _, path := range moved {
			c := st.register(models.Certificate{
				Name:   filepath.Base(path),
				Path:   path,
				Source: orig.Source,
				Kind:   models.KindHuman,
			})
			final = append(final, c.ID)
		}
		st.Record(StageClassify, "Object detection found %d certificate(s) in %s", len(moved), orig.Name)
	}
	return final
}

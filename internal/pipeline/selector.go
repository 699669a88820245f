package pipeline

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// materialize copies accepted and rejected certificates into their output directories.
func (p *Pipeline) materialize(st *State, ws Workspace) error {
	for _, set := range []struct {
		ids []string
		dir string
	}{
		{st.Accepted(), ws.Accepted},
		{st.Rejected(), ws.Rejected},
	} {
		for _, id := range set.ids {
			c, _ := st.Certificate(id)
			err := copyFile(c.Path, filepath.Join(set.dir, c.Name))
			if errors.Is(err, fs.ErrNotExist) {
				st.Record(StageSelect, "Source file for %s is missing, skipping", c.Name)
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to materialize %s: %w", c.Name, err)
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

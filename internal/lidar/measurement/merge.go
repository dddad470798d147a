package measurement

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Reader decodes one raw file.
type Reader interface {
	ReadFile(path string) (*RawFile, error)
}

// maxParallelReads bounds concurrent decoding in MergeFiles.
const maxParallelReads = 4

// MergeFiles decodes paths concurrently and then ingests or appends them
// one by one in the given order. Decoding errors abort before any file is
// merged; a merge error stops at the failing file and leaves the files
// before it merged.
func (m *Measurement) MergeFiles(ctx context.Context, r Reader, paths []string) error {
	raws := make([]*RawFile, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelReads)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			raw, err := r.ReadFile(p)
			if err != nil {
				return fmt.Errorf("read %s: %w", p, err)
			}
			raws[i] = raw
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, raw := range raws {
		var err error
		if i == 0 && !m.Ingested() {
			err = m.Ingest(raw)
		} else {
			err = m.Append(raw)
		}
		if err != nil {
			return fmt.Errorf("merge %s: %w", paths[i], err)
		}
	}
	return nil
}

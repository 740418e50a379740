package app

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/alexisbeaulieu97/diva/internal/project"
	"github.com/alexisbeaulieu97/diva/pkg/diff"
)

// Manifest renders the persisted state of pages as stable text: one header
// line per page followed by every stored key with its size and digest.
// Manifests of two runs over the same inputs are byte identical.
func (s *Service) Manifest(ctx context.Context, pages []*project.Page) ([]byte, error) {
	var buf bytes.Buffer
	for _, page := range pages {
		state, _, err := page.State(ctx)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.ID(), err)
		}
		fmt.Fprintf(&buf, "page %d %q pipeline=%d state=%s\n", page.ID(), page.Name(), page.PipelineID(), state)

		st := page.Store()
		keys, err := st.List(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page.ID(), err)
		}
		for _, key := range keys {
			data, err := st.Read(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("page %d: read %s: %w", page.ID(), key, err)
			}
			sum := sha256.Sum256(data)
			fmt.Fprintf(&buf, "  %s %d sha256:%s\n", key, len(data), hex.EncodeToString(sum[:]))
		}
	}
	return buf.Bytes(), nil
}

// Verification is the result of comparing a recorded manifest with the
// current state.
type Verification struct {
	Stats diff.Stats
	Diff  string
}

// OK reports whether the current state matches the recording.
func (v Verification) OK() bool { return !v.Stats.Changed() }

// Verify compares the manifest of pages with a recorded one.
func (s *Service) Verify(ctx context.Context, pages []*project.Page, recorded []byte, label string) (Verification, error) {
	current, err := s.Manifest(ctx, pages)
	if err != nil {
		return Verification{}, err
	}
	v := Verification{Stats: diff.Compare(recorded, current)}
	if v.Stats.Changed() {
		v.Diff = diff.GenerateUnifiedDiff(recorded, current, label, "current")
	}
	return v, nil
}

// Pages resolves a page id to pages, every page when id is negative.
func (s *Service) Pages(id int) ([]*project.Page, error) {
	return s.pages(id)
}

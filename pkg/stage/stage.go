// Package stage turns accepted file changes into a staged list of
// creates, modifications, and deletions, with unified diffs against the
// live tree. Staging and diffing are read-only; Apply writes files with
// per-file error reporting and no cross-file rollback.
package stage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"codewright/pkg/logx"
	"codewright/pkg/proto"
)

// ChangeKind classifies a staged change.
type ChangeKind string

const (
	// KindCreate is a file that does not yet exist.
	KindCreate ChangeKind = "create"
	// KindModify replaces an existing file's content.
	KindModify ChangeKind = "modify"
	// KindDelete removes an existing file. Signaled by an accepted
	// change with empty content for a path that exists.
	KindDelete ChangeKind = "delete"
)

// StagedChange is one file's pending edit with its diff against the
// live content.
type StagedChange struct {
	Path       string
	Kind       ChangeKind
	OldContent string
	NewContent string
	Diff       string
	Insertions int
	Deletions  int
}

// ApplyResult reports one file write. Err is nil on success.
type ApplyResult struct {
	Path string
	Kind ChangeKind
	Err  error
}

// Stager computes and applies staged change lists under a project root.
type Stager struct {
	root   string
	dmp    *diffmatchpatch.DiffMatchPatch
	logger *logx.Logger
}

// NewStager creates a stager rooted at the project directory.
func NewStager(root string) *Stager {
	return &Stager{
		root:   root,
		dmp:    diffmatchpatch.New(),
		logger: logx.NewLogger("stage"),
	}
}

// Stage classifies each accepted change against the live file system.
// Read-only: nothing is written. An unreadable existing file fails the
// whole staging pass since its diff cannot be computed.
func (s *Stager) Stage(changes []proto.FileChange) ([]StagedChange, error) {
	staged := make([]StagedChange, 0, len(changes))
	for i := range changes {
		change := &changes[i]
		full := filepath.Join(s.root, change.Path)

		var oldContent string
		exists := false
		if data, err := os.ReadFile(full); err == nil {
			oldContent = string(data)
			exists = true
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s for staging: %w", change.Path, err)
		}

		sc := StagedChange{
			Path:       change.Path,
			OldContent: oldContent,
			NewContent: change.Content,
		}
		switch {
		case exists && change.Content == "":
			sc.Kind = KindDelete
		case exists:
			sc.Kind = KindModify
		default:
			sc.Kind = KindCreate
		}

		sc.Diff = s.unifiedDiff(change.Path, oldContent, sc.NewContent)
		sc.Insertions, sc.Deletions = countChanges(oldContent, sc.NewContent)
		staged = append(staged, sc)
	}
	return staged, nil
}

// Summary renders a human-readable one-line-per-file staged list.
func Summary(staged []StagedChange) string {
	var b strings.Builder
	for i := range staged {
		sc := &staged[i]
		fmt.Fprintf(&b, "%-6s %s (+%d -%d)\n", sc.Kind, sc.Path, sc.Insertions, sc.Deletions)
	}
	return b.String()
}

// CombinedDiff concatenates every staged file's unified diff.
func CombinedDiff(staged []StagedChange) string {
	var b strings.Builder
	for i := range staged {
		b.WriteString(staged[i].Diff)
	}
	return b.String()
}

// Apply writes every staged change. Failures are reported per file and
// already-applied writes are not rolled back; the caller decides whether
// to retry or abort.
func (s *Stager) Apply(staged []StagedChange) []ApplyResult {
	results := make([]ApplyResult, 0, len(staged))
	for i := range staged {
		sc := &staged[i]
		results = append(results, ApplyResult{
			Path: sc.Path,
			Kind: sc.Kind,
			Err:  s.applyOne(sc),
		})
	}
	return results
}

func (s *Stager) applyOne(sc *StagedChange) error {
	full := filepath.Join(s.root, sc.Path)

	if sc.Kind == KindDelete {
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("deleting %s: %w", sc.Path, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", sc.Path, err)
	}
	if err := os.WriteFile(full, []byte(sc.NewContent), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", sc.Path, err)
	}
	s.logger.Debug("%s %s", sc.Kind, sc.Path)
	return nil
}

// unifiedDiff renders a line-level unified diff with the conventional
// a/ b/ header.
func (s *Stager) unifiedDiff(path, oldContent, newContent string) string {
	if oldContent == newContent {
		return ""
	}

	oldChars, newChars, lines := s.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := s.dmp.DiffCharsToLines(s.dmp.DiffMain(oldChars, newChars, false), lines)

	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", path, path)

	oldLine, newLine := 1, 1
	var hunk []string
	hunkOldStart, hunkNewStart := 1, 1
	hunkOldCount, hunkNewCount := 0, 0

	for _, diff := range diffs {
		for _, line := range splitDiffLines(diff.Text) {
			if len(hunk) == 0 {
				hunkOldStart, hunkNewStart = oldLine, newLine
			}
			switch diff.Type {
			case diffmatchpatch.DiffEqual:
				hunk = append(hunk, " "+line)
				hunkOldCount++
				hunkNewCount++
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				hunk = append(hunk, "-"+line)
				hunkOldCount++
				oldLine++
			case diffmatchpatch.DiffInsert:
				hunk = append(hunk, "+"+line)
				hunkNewCount++
				newLine++
			}
		}
	}

	if len(hunk) > 0 {
		fmt.Fprintf(&b, "@@ -%d,%d +%d,%d @@\n", hunkOldStart, hunkOldCount, hunkNewStart, hunkNewCount)
		for _, line := range hunk {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func splitDiffLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if strings.HasSuffix(text, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	n := strings.Count(content, "\n")
	if !strings.HasSuffix(content, "\n") {
		n++
	}
	return n
}

// countChanges approximates affected line counts from the size delta.
func countChanges(oldContent, newContent string) (insertions, deletions int) {
	oldLines := countLines(oldContent)
	newLines := countLines(newContent)
	switch {
	case newLines > oldLines:
		insertions = newLines - oldLines
	case oldLines > newLines:
		deletions = oldLines - newLines
	case oldContent != newContent:
		insertions, deletions = 1, 1
	}
	return insertions, deletions
}

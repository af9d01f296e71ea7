// Package consent implements the dependency approval gate: a durable
// per-project approval store, an in-memory session approval set, and the
// prompt-driven decision flow that sits between import validation and
// dependency installation.
package consent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"codewright/pkg/logx"
	"codewright/pkg/proto"
)

// ConsentFileName is the durable consent document, one per project root.
const ConsentFileName = "consent.json"

// ProjectDir is the dot-directory holding all per-project tool state.
const ProjectDir = ".codewright"

// Store manages the durable ProjectConsent document. All read failures
// degrade to an empty document so a corrupt store never blocks a run.
type Store struct {
	path   string
	logger *logx.Logger
	mu     sync.Mutex
}

// NewStore creates a store rooted at the given project directory.
func NewStore(projectRoot string) *Store {
	return &Store{
		path:   filepath.Join(projectRoot, ProjectDir, ConsentFileName),
		logger: logx.NewLogger("consent"),
	}
}

// Path returns the consent document location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the consent document. A missing, unreadable, or corrupt file
// returns an empty document and no error: storage trouble must never abort
// the run.
func (s *Store) Load() *proto.ProjectConsent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() *proto.ProjectConsent {
	empty := &proto.ProjectConsent{
		Version:          proto.ConsentSchemaVersion,
		ApprovedPackages: []string{},
		Decisions:        []proto.ConsentDecision{},
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("consent store unreadable, treating as empty: %v", err)
		}
		return empty
	}

	var doc proto.ProjectConsent
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("consent store corrupt, treating as empty: %v", err)
		return empty
	}
	if doc.ApprovedPackages == nil {
		doc.ApprovedPackages = []string{}
	}
	if doc.Decisions == nil {
		doc.Decisions = []proto.ConsentDecision{}
	}
	return &doc
}

// IsApproved reports whether pkg is project-approved in the durable store.
func (s *Store) IsApproved(pkg string) bool {
	doc := s.Load()
	for _, approved := range doc.ApprovedPackages {
		if approved == pkg {
			return true
		}
	}
	return false
}

// RecordApproval persists a project-scope approval for pkg. The approved
// set stays deduplicated and the decision log is bounded to the most
// recent proto.MaxConsentDecisions entries, oldest evicted first.
func (s *Store) RecordApproval(decision proto.ConsentDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.loadLocked()

	if decision.Scope == proto.ScopeProject {
		found := false
		for _, approved := range doc.ApprovedPackages {
			if approved == decision.Package {
				found = true
				break
			}
		}
		if !found {
			doc.ApprovedPackages = append(doc.ApprovedPackages, decision.Package)
			sort.Strings(doc.ApprovedPackages)
		}
	}

	doc.Decisions = append(doc.Decisions, decision)
	if len(doc.Decisions) > proto.MaxConsentDecisions {
		doc.Decisions = doc.Decisions[len(doc.Decisions)-proto.MaxConsentDecisions:]
	}

	return s.writeLocked(doc)
}

func (s *Store) writeLocked(doc *proto.ProjectConsent) error {
	doc.Version = proto.ConsentSchemaVersion

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create consent directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal consent document: %w", err)
	}

	// Write-then-rename keeps the document intact if the process dies
	// mid-write.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write consent document: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace consent document: %w", err)
	}
	return nil
}

package proto

import (
	"testing"
)

func TestValidateOrdering_Valid(t *testing.T) {
	tasks := []Task{
		{ID: "t1", Title: "first"},
		{ID: "t2", Title: "second", DependsOn: []string{"t1"}},
		{ID: "t3", Title: "third", DependsOn: []string{"t1", "t2"}},
	}
	if err := ValidateOrdering(tasks); err != nil {
		t.Errorf("expected valid ordering, got %v", err)
	}
}

func TestValidateOrdering_ForwardReference(t *testing.T) {
	tasks := []Task{
		{ID: "t1", DependsOn: []string{"t2"}},
		{ID: "t2"},
	}
	if err := ValidateOrdering(tasks); err == nil {
		t.Error("expected error for forward dependency reference")
	}
}

func TestValidateOrdering_SelfReference(t *testing.T) {
	tasks := []Task{
		{ID: "t1", DependsOn: []string{"t1"}},
	}
	if err := ValidateOrdering(tasks); err == nil {
		t.Error("expected error for self-referencing dependency")
	}
}

func TestValidateOrdering_DuplicateID(t *testing.T) {
	tasks := []Task{
		{ID: "t1"},
		{ID: "t1"},
	}
	if err := ValidateOrdering(tasks); err == nil {
		t.Error("expected error for duplicate task id")
	}
}

func TestValidateOrdering_MissingID(t *testing.T) {
	tasks := []Task{{Title: "no id"}}
	if err := ValidateOrdering(tasks); err == nil {
		t.Error("expected error for missing task id")
	}
}

func TestErrorIssues(t *testing.T) {
	result := ReviewResult{
		Issues: []ReviewIssue{
			{Severity: SeverityError, Description: "broken"},
			{Severity: SeverityWarning, Description: "iffy"},
			{Severity: SeverityError, Description: "also broken"},
			{Severity: SeveritySuggestion, Description: "style"},
		},
	}
	errs := result.ErrorIssues()
	if len(errs) != 2 {
		t.Fatalf("expected 2 error issues, got %d", len(errs))
	}
	for _, issue := range errs {
		if issue.Severity != SeverityError {
			t.Errorf("non-error severity in ErrorIssues: %s", issue.Severity)
		}
	}
}

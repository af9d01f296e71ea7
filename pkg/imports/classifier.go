package imports

import (
	"context"
	"fmt"
	"strings"

	"codewright/pkg/consent"
	"codewright/pkg/logx"
	"codewright/pkg/proto"
)

// Classifier validates a code string's imports against the packages the
// project actually has installed and the platform's builtin modules.
type Classifier struct {
	installed    map[string]bool
	builtins     map[string]bool
	alternatives map[string]proto.AlternativeInfo
	logger       *logx.Logger
}

// NewClassifier creates a classifier from the project's installed
// production+dev package names. The Node builtin table and the built-in
// alternatives registry are used as the platform defaults.
func NewClassifier(installedPackages []string) *Classifier {
	return NewClassifierWithBuiltins(installedPackages, NodeBuiltins, BuiltinAlternatives)
}

// NewClassifierWithBuiltins creates a classifier with explicit builtin and
// alternative tables.
func NewClassifierWithBuiltins(installedPackages, builtins []string, alternatives map[string]proto.AlternativeInfo) *Classifier {
	installed := make(map[string]bool, len(installedPackages))
	for _, pkg := range installedPackages {
		installed[pkg] = true
	}
	builtinSet := make(map[string]bool, len(builtins))
	for _, name := range builtins {
		builtinSet[name] = true
	}
	return &Classifier{
		installed:    installed,
		builtins:     builtinSet,
		alternatives: alternatives,
		logger:       logx.NewLogger("imports"),
	}
}

// Validate classifies every import in code. Valid iff nothing is missing;
// each missing package appears exactly once regardless of how many times
// or via which form it is imported.
func (c *Classifier) Validate(code string) proto.ImportValidationResult {
	result := proto.ImportValidationResult{
		Valid:           true,
		MissingPackages: []string{},
		SuggestedFixes:  []string{},
		Alternatives:    map[string]proto.AlternativeInfo{},
	}

	missingSeen := make(map[string]bool)
	for _, spec := range ExtractSpecifiers(code) {
		if c.specifierValid(spec) {
			continue
		}

		pkg := TopLevelPackage(spec)
		if missingSeen[pkg] {
			continue
		}
		missingSeen[pkg] = true

		result.Valid = false
		result.MissingPackages = append(result.MissingPackages, pkg)
		if alt, ok := c.alternatives[pkg]; ok {
			result.Alternatives[pkg] = alt
			result.SuggestedFixes = append(result.SuggestedFixes,
				fmt.Sprintf("%s is not installed; use the built-in %s instead (%s). Example: %s",
					pkg, alt.Module, alt.Description, alt.Example))
		} else {
			result.SuggestedFixes = append(result.SuggestedFixes,
				fmt.Sprintf("%s is not installed; reimplement the needed functionality manually without third-party code", pkg))
		}
	}

	if !result.Valid {
		c.logger.Debug("found %d missing package(s): %s", len(result.MissingPackages), strings.Join(result.MissingPackages, ", "))
	}
	return result
}

// specifierValid reports whether a single specifier resolves without an
// install: relative, builtin (with or without the node: prefix), an
// installed package, or a subpath of one.
func (c *Classifier) specifierValid(spec string) bool {
	// Relative specifiers are always valid and excluded from further
	// checks.
	if strings.HasPrefix(spec, ".") {
		return true
	}

	trimmed := strings.TrimPrefix(spec, BuiltinPrefix)
	if c.builtins[trimmed] || c.builtins[TopLevelPackage(trimmed)] {
		return true
	}
	// An explicit node: prefix on an unrecognized name is still builtin
	// namespace, not an installable package.
	if strings.HasPrefix(spec, BuiltinPrefix) {
		return true
	}

	return c.installed[spec] || c.installed[TopLevelPackage(spec)]
}

// BatchApprover is the consent surface used by ValidateWithConsent.
type BatchApprover interface {
	CheckBatchApprovalWithAlternatives(ctx context.Context, packages []string, reqCtx consent.RequestContext) (consent.BatchResult, error)
}

// ValidateWithConsent layers the consent gate over Validate. Clean code
// returns valid without consulting consent at all. Otherwise the missing
// packages go through batch approval: approved packages become
// ApprovedPackages, everything else (including packages left unprocessed
// after the gate stopped at a rejection, and packages answered with a
// substitution) becomes RejectedPackages. Valid iff RejectedPackages is
// empty.
func (c *Classifier) ValidateWithConsent(ctx context.Context, code string, gate BatchApprover, reqCtx consent.RequestContext) (proto.ImportValidationResult, error) {
	result := c.Validate(code)
	if result.Valid {
		return result, nil
	}

	// Surface the known alternatives so the gate can offer each
	// package its own substitute during the batch.
	if reqCtx.Alternatives == nil {
		reqCtx.Alternatives = result.Alternatives
	}

	batch, err := gate.CheckBatchApprovalWithAlternatives(ctx, result.MissingPackages, reqCtx)
	if err != nil {
		return result, fmt.Errorf("consent check failed: %w", err)
	}

	for _, approval := range batch.Approved {
		result.ApprovedPackages = append(result.ApprovedPackages, approval.Package)
	}
	result.RejectedPackages = append(result.RejectedPackages, batch.Rejected...)
	for pkg := range batch.Alternatives {
		result.RejectedPackages = append(result.RejectedPackages, pkg)
	}

	result.Valid = len(result.RejectedPackages) == 0
	return result, nil
}

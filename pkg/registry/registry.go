// Package registry checks candidate package names against the public npm
// registry before anything is installed: first syntactically, then with an
// HTTPS existence lookup.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"codewright/pkg/logx"
)

// DefaultRegistryURL is the public npm registry endpoint.
const DefaultRegistryURL = "https://registry.npmjs.org"

const lookupTimeout = 10 * time.Second

// npm package name rules: lowercase, url-safe, no leading dot or
// underscore, max 214 characters including any scope.
var (
	unscopedNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	scopedNameRe   = regexp.MustCompile(`^@[a-z0-9][a-z0-9._-]*/[a-z0-9][a-z0-9._-]*$`)
)

// ExistsResult is the outcome of a registry lookup.
type ExistsResult struct {
	Exists bool
	// Error holds a lookup failure (network, unexpected status). When
	// set, Exists is not meaningful and the caller decides whether to
	// proceed optimistically.
	Error error
}

// Checker performs name validation and existence lookups against a
// package registry.
type Checker struct {
	baseURL string
	client  *http.Client
	logger  *logx.Logger
}

// NewChecker creates a checker against the public npm registry.
func NewChecker() *Checker {
	return NewCheckerWithURL(DefaultRegistryURL)
}

// NewCheckerWithURL creates a checker against a specific registry
// endpoint. Used by tests with an httptest server.
func NewCheckerWithURL(baseURL string) *Checker {
	return &Checker{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: lookupTimeout},
		logger:  logx.NewLogger("registry"),
	}
}

// ValidateName reports whether name is a syntactically legal npm package
// name. This runs before any network or subprocess touches the name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("package name is empty")
	}
	if len(name) > 214 {
		return fmt.Errorf("package name %q exceeds 214 characters", name)
	}
	if name != strings.ToLower(name) {
		return fmt.Errorf("package name %q must be lowercase", name)
	}
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return fmt.Errorf("package name %q must not start with a dot or underscore", name)
	}
	if strings.HasPrefix(name, "@") {
		if !scopedNameRe.MatchString(name) {
			return fmt.Errorf("invalid scoped package name %q", name)
		}
		return nil
	}
	if !unscopedNameRe.MatchString(name) {
		return fmt.Errorf("invalid package name %q", name)
	}
	return nil
}

// Exists checks whether the named package is published in the registry.
// A syntactically invalid name returns exists=false with the validation
// error; a network failure returns an ExistsResult carrying the error so
// the caller can distinguish "not published" from "could not check".
func (c *Checker) Exists(ctx context.Context, name string) ExistsResult {
	if err := ValidateName(name); err != nil {
		return ExistsResult{Exists: false, Error: err}
	}

	// Scoped names need the slash escaped in the registry path.
	endpoint := c.baseURL + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ExistsResult{Error: fmt.Errorf("building registry request: %w", err)}
	}
	req.Header.Set("Accept", "application/vnd.npm.install-v1+json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("registry lookup for %s failed: %v", name, err)
		return ExistsResult{Error: fmt.Errorf("registry lookup for %s: %w", name, err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return ExistsResult{Exists: true}
	case http.StatusNotFound:
		return ExistsResult{Exists: false}
	default:
		return ExistsResult{Error: fmt.Errorf("registry returned status %d for %s", resp.StatusCode, name)}
	}
}

// FilterExisting partitions names into those confirmed published and those
// not found. Lookup failures count as existing so a flaky registry never
// blocks a consent-approved install; the installer surfaces the real
// failure if the package turns out to be missing.
func (c *Checker) FilterExisting(ctx context.Context, names []string) (existing, missing []string) {
	for _, name := range names {
		res := c.Exists(ctx, name)
		switch {
		case res.Error != nil:
			c.logger.Warn("could not verify %s, proceeding: %v", name, res.Error)
			existing = append(existing, name)
		case res.Exists:
			existing = append(existing, name)
		default:
			missing = append(missing, name)
		}
	}
	return existing, missing
}

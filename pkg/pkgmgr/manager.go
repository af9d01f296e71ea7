package pkgmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is the project manifest file every manager shares.
const ManifestName = "package.json"

// Manager describes one package manager variant: its lock file and how it
// spells "install these as dependencies / dev dependencies".
type Manager struct {
	Name     string
	LockFile string
	// installArgs is the command prefix before the package names.
	installArgs    []string
	installDevArgs []string
}

// InstallCommand builds the full argv for installing packages. dev selects
// the development-dependency flag set.
func (m Manager) InstallCommand(packages []string, dev bool) []string {
	args := m.installArgs
	if dev {
		args = m.installDevArgs
	}
	cmd := make([]string, 0, 1+len(args)+len(packages))
	cmd = append(cmd, m.Name)
	cmd = append(cmd, args...)
	cmd = append(cmd, packages...)
	return cmd
}

// Known manager variants. npm is the default when nothing identifies the
// project's manager.
var (
	NPM  = Manager{Name: "npm", LockFile: "package-lock.json", installArgs: []string{"install", "--save"}, installDevArgs: []string{"install", "--save-dev"}}
	Yarn = Manager{Name: "yarn", LockFile: "yarn.lock", installArgs: []string{"add"}, installDevArgs: []string{"add", "--dev"}}
	PNPM = Manager{Name: "pnpm", LockFile: "pnpm-lock.yaml", installArgs: []string{"add"}, installDevArgs: []string{"add", "--save-dev"}}
	Bun  = Manager{Name: "bun", LockFile: "bun.lockb", installArgs: []string{"add"}, installDevArgs: []string{"add", "--dev"}}

	allManagers = []Manager{NPM, Yarn, PNPM, Bun}
)

// DetectManager identifies the project's package manager from its lock
// file. Exactly one lock file selects its manager. More than one is an
// ambiguous project state and returns a multiple_lock_files error naming
// every manager found. Zero falls back to the manifest's packageManager
// field, then to npm.
func DetectManager(projectRoot string) (Manager, error) {
	var found []Manager
	for _, m := range allManagers {
		if _, err := os.Stat(filepath.Join(projectRoot, m.LockFile)); err == nil {
			found = append(found, m)
		}
	}

	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return managerFromManifest(projectRoot), nil
	default:
		names := make([]string, len(found))
		for i, m := range found {
			names[i] = fmt.Sprintf("%s (%s)", m.Name, m.LockFile)
		}
		return Manager{}, &Error{
			Category: ErrMultipleLockFiles,
			Message:  fmt.Sprintf("multiple lock files found, cannot determine package manager: %s", strings.Join(names, ", ")),
		}
	}
}

// managerFromManifest reads package.json's packageManager field
// ("yarn@1.22.19" style). Anything unreadable or unrecognized defaults to
// npm.
func managerFromManifest(projectRoot string) Manager {
	data, err := os.ReadFile(filepath.Join(projectRoot, ManifestName))
	if err != nil {
		return NPM
	}
	var manifest struct {
		PackageManager string `json:"packageManager"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return NPM
	}

	name, _, _ := strings.Cut(manifest.PackageManager, "@")
	for _, m := range allManagers {
		if m.Name == name {
			return m
		}
	}
	return NPM
}

// InstalledPackages reads the dependency and devDependency names from the
// project manifest, for seeding the import classifier. A missing or
// unparseable manifest yields an empty list.
func InstalledPackages(projectRoot string) []string {
	data, err := os.ReadFile(filepath.Join(projectRoot, ManifestName))
	if err != nil {
		return nil
	}
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil
	}

	names := make([]string, 0, len(manifest.Dependencies)+len(manifest.DevDependencies))
	for name := range manifest.Dependencies {
		names = append(names, name)
	}
	for name := range manifest.DevDependencies {
		names = append(names, name)
	}
	return names
}

package pkgmgr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codewright/pkg/exec"
	"codewright/pkg/logx"
	"codewright/pkg/registry"
)

const installTimeout = 5 * time.Minute

// Installer runs package installs for a project with backup/restore
// around every attempt.
type Installer struct {
	projectRoot string
	manager     Manager
	executor    exec.Executor
	logger      *logx.Logger
}

// NewInstaller creates an installer for the detected manager. The
// executor abstraction keeps subprocess handling testable.
func NewInstaller(projectRoot string, manager Manager, executor exec.Executor) *Installer {
	return &Installer{
		projectRoot: projectRoot,
		manager:     manager,
		executor:    executor,
		logger:      logx.NewLogger("pkgmgr"),
	}
}

// Manager returns the manager variant this installer drives.
func (i *Installer) Manager() Manager {
	return i.manager
}

// validateNames rejects any package name that fails syntax validation.
// This runs before the file system or subprocess layer is touched, so a
// name carrying shell metacharacters can never reach a command line.
func validateNames(packages []string) *Error {
	var bad []string
	var reasons []string
	for _, pkg := range packages {
		if err := registry.ValidateName(pkg); err != nil {
			bad = append(bad, pkg)
			reasons = append(reasons, err.Error())
		}
	}
	if len(bad) > 0 {
		return newInvalidArgument(bad, strings.Join(reasons, "; "))
	}
	return nil
}

// Install installs packages with a backup of the manifest and lock file
// around the attempt. On any failure after the backup exists, the live
// files are restored before the error is surfaced; on success the backups
// are removed. The returned error, when non-nil, is always a *Error.
func (i *Installer) Install(ctx context.Context, packages []string, dev bool) error {
	if len(packages) == 0 {
		return nil
	}
	if verr := validateNames(packages); verr != nil {
		return verr
	}

	backup, err := CreateBackup(i.projectRoot, i.manager)
	if err != nil {
		return newExecutionFailed(packages, fmt.Sprintf("could not back up manifest: %v", err))
	}

	cmd := i.manager.InstallCommand(packages, dev)
	i.logger.Info("installing %s via %s", strings.Join(packages, ", "), i.manager.Name)

	opts := exec.DefaultOpts()
	opts.WorkDir = i.projectRoot
	opts.Timeout = installTimeout

	result, runErr := i.executor.Run(ctx, cmd, opts)
	if runErr != nil {
		i.restoreAfterFailure(backup)
		return newExecutionFailed(packages, fmt.Sprintf("%s could not be executed: %v", i.manager.Name, runErr))
	}
	if result.ExitCode != 0 {
		i.restoreAfterFailure(backup)
		return newInstallFailed(packages, result.ExitCode, result.Stderr)
	}

	if err := backup.Cleanup(); err != nil {
		// The install itself succeeded; stray backups are a nuisance,
		// not a failure.
		i.logger.Warn("could not remove backup files: %v", err)
	}
	i.logger.Info("installed %s in %s", strings.Join(packages, ", "), result.Duration.Round(time.Millisecond))
	return nil
}

func (i *Installer) restoreAfterFailure(backup *BackupState) {
	if err := backup.Restore(); err != nil {
		i.logger.Error("could not restore manifest backup: %v", err)
	}
}

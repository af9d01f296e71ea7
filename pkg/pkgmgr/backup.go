package pkgmgr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"codewright/pkg/logx"
)

// backupMarker tags backup copies so they are recognizable beside the
// live files.
const backupMarker = ".backup-"

// filePair tracks a live file and its backup copy.
type filePair struct {
	path       string
	backupPath string
}

// BackupState owns the backup copies of the manifest and (if present)
// lock file for the duration of a single install attempt. Exactly one of
// Restore or Cleanup is called per attempt; both are idempotent.
type BackupState struct {
	manifest filePair
	lock     *filePair
	logger   *logx.Logger
}

// CreateBackup copies the project manifest and, if present, the manager's
// lock file to timestamp-tagged sibling paths. The manifest must exist.
func CreateBackup(projectRoot string, manager Manager) (*BackupState, error) {
	stamp := time.Now().Format("20060102T150405")
	state := &BackupState{logger: logx.NewLogger("pkgmgr")}

	manifestPath := filepath.Join(projectRoot, ManifestName)
	manifestBackup := manifestPath + backupMarker + stamp
	if err := copyFile(manifestPath, manifestBackup); err != nil {
		return nil, fmt.Errorf("backing up %s: %w", ManifestName, err)
	}
	state.manifest = filePair{path: manifestPath, backupPath: manifestBackup}

	lockPath := filepath.Join(projectRoot, manager.LockFile)
	if _, err := os.Stat(lockPath); err == nil {
		lockBackup := lockPath + backupMarker + stamp
		if err := copyFile(lockPath, lockBackup); err != nil {
			// Roll back the manifest copy so no stray backup survives.
			_ = os.Remove(manifestBackup)
			return nil, fmt.Errorf("backing up %s: %w", manager.LockFile, err)
		}
		state.lock = &filePair{path: lockPath, backupPath: lockBackup}
	}

	return state, nil
}

// Restore replaces the live manifest and lock file with the backup copies
// and removes the backups. Safe to call when the backups are already
// gone.
func (b *BackupState) Restore() error {
	if err := b.restorePair(b.manifest); err != nil {
		return err
	}
	if b.lock != nil {
		if err := b.restorePair(*b.lock); err != nil {
			return err
		}
	}
	return nil
}

func (b *BackupState) restorePair(pair filePair) error {
	if _, err := os.Stat(pair.backupPath); os.IsNotExist(err) {
		// Already restored or cleaned up.
		return nil
	}
	if err := os.Remove(pair.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s before restore: %w", pair.path, err)
	}
	if err := copyFile(pair.backupPath, pair.path); err != nil {
		return fmt.Errorf("restoring %s: %w", pair.path, err)
	}
	if err := os.Remove(pair.backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing backup %s: %w", pair.backupPath, err)
	}
	b.logger.Debug("restored %s from backup", pair.path)
	return nil
}

// Cleanup removes the backup copies, leaving the live files untouched.
// Safe to call when the backups are already gone.
func (b *BackupState) Cleanup() error {
	if err := os.Remove(b.manifest.backupPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing backup %s: %w", b.manifest.backupPath, err)
	}
	if b.lock != nil {
		if err := os.Remove(b.lock.backupPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing backup %s: %w", b.lock.backupPath, err)
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

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

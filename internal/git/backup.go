package git

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const backupTimeLayout = "20060102-150405"

// BackupBranch is a safe-refactor backup branch found in the repository.
type BackupBranch struct {
	Name    string
	Created time.Time
	Age     time.Duration
}

// BackupBranchName builds <prefix>-<yyyymmdd-hhmmss>-<id8>.
func BackupBranchName(prefix string, at time.Time, id string) string {
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, at.Format(backupTimeLayout), id)
}

// ParseBackupTime extracts the creation time encoded in a backup branch name.
func ParseBackupTime(prefix, name string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok || len(rest) < len(backupTimeLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(backupTimeLayout, rest[:len(backupTimeLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FindBackupBranches lists backup branches under prefix with their age.
// The creation time comes from the branch name; the tip commit time is the fallback.
func (c *Client) FindBackupBranches(ctx context.Context, prefix string, now time.Time) ([]BackupBranch, error) {
	names, err := c.ListBranches(ctx, prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("failed to list backup branches: %w", err)
	}

	var branches []BackupBranch
	for _, name := range names {
		created, ok := ParseBackupTime(prefix, name)
		if !ok {
			created, err = c.GetBranchTimestamp(ctx, name)
			if err != nil {
				// Skip branches we can't get timestamps for
				continue
			}
		}
		branches = append(branches, BackupBranch{
			Name:    name,
			Created: created,
			Age:     now.Sub(created),
		})
	}
	return branches, nil
}

// CleanupResult reports what a cleanup pass did.
type CleanupResult struct {
	Deleted []BackupBranch
	Kept    []BackupBranch
	Failed  map[string]error
}

// CleanupBackupBranches deletes backup branches older than retentionDays.
// With dryRun the candidates are reported in Deleted but left in place.
// The currently checked out branch is never deleted.
func (c *Client) CleanupBackupBranches(ctx context.Context, prefix string, retentionDays int, dryRun bool, now time.Time) (*CleanupResult, error) {
	branches, err := c.FindBackupBranches(ctx, prefix, now)
	if err != nil {
		return nil, err
	}

	current, _ := c.CurrentBranch(ctx)
	retention := time.Duration(retentionDays) * 24 * time.Hour
	result := &CleanupResult{Failed: make(map[string]error)}

	for _, b := range branches {
		if b.Age < retention || b.Name == current {
			result.Kept = append(result.Kept, b)
			continue
		}
		if dryRun {
			result.Deleted = append(result.Deleted, b)
			continue
		}
		if err := c.DeleteBranch(ctx, b.Name); err != nil {
			result.Failed[b.Name] = err
			continue
		}
		result.Deleted = append(result.Deleted, b)
	}

	return result, nil
}

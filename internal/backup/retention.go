package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Retention is a tiered keep policy. Backups are bucketed by age and the
// newest N of each bucket survive; anything older than a year goes.
type Retention struct {
	Hourly  int // backups younger than 24h (default 24)
	Daily   int // 1-7 days (default 7)
	Weekly  int // 7-30 days (default 4)
	Monthly int // 30-365 days (default 12)
}

func (r Retention) withDefaults() Retention {
	if r.Hourly == 0 {
		r.Hourly = 24
	}
	if r.Daily == 0 {
		r.Daily = 7
	}
	if r.Weekly == 0 {
		r.Weekly = 4
	}
	if r.Monthly == 0 {
		r.Monthly = 12
	}
	return r
}

// listBackups returns this service's backup files, newest first.
func listBackups(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read backup directory: %w", err)
	}

	var backups []Info
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(dir, name),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// applyRetention deletes backups that fall outside the keep policy.
func applyRetention(dir string, keep Retention) error {
	backups, err := listBackups(dir)
	if err != nil {
		return err
	}

	now := time.Now()
	var hourly, daily, weekly, monthly []Info
	var doomed []string

	for _, b := range backups {
		age := now.Sub(b.Timestamp)
		switch {
		case age < 24*time.Hour:
			hourly = append(hourly, b)
		case age < 7*24*time.Hour:
			daily = append(daily, b)
		case age < 30*24*time.Hour:
			weekly = append(weekly, b)
		case age < 365*24*time.Hour:
			monthly = append(monthly, b)
		default:
			doomed = append(doomed, b.Path)
		}
	}

	for _, tier := range []struct {
		backups []Info
		keep    int
	}{
		{hourly, keep.Hourly},
		{daily, keep.Daily},
		{weekly, keep.Weekly},
		{monthly, keep.Monthly},
	} {
		if len(tier.backups) > tier.keep {
			for _, b := range tier.backups[tier.keep:] {
				doomed = append(doomed, b.Path)
			}
		}
	}

	var lastErr error
	for _, path := range doomed {
		if err := os.Remove(path); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("backup: failed to delete some backups: %w", lastErr)
	}
	return nil
}

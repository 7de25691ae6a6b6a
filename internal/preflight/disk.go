package preflight

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/Aman-CERP/amanindex/internal/ui"
)

const (
	// MinDiskSpaceBytes is the minimum free space in the data directory (100MB).
	MinDiskSpaceBytes = 100 * 1024 * 1024

	// MinFileDescriptors is the minimum required file descriptor limit.
	MinFileDescriptors = 1024
)

// inotifyWatchesPath is a variable so tests can point it elsewhere.
var inotifyWatchesPath = "/proc/sys/fs/inotify/max_user_watches"

// CheckDiskSpace checks if there's sufficient disk space at the given path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	available := int64(stat.Bavail) * int64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: 100 MB)", ui.FormatBytes(available))
	if available < MinDiskSpaceBytes {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckFileDescriptors checks if the file descriptor limit is sufficient.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
		return result
	}
	result.Status = StatusPass
	return result
}

// CheckInotifyWatches compares the kernel's per-user watch limit with the
// watcher's directory cap. A low limit only degrades live updates, so the
// check never fails.
func (c *Checker) CheckInotifyWatches(want int) CheckResult {
	result := CheckResult{
		Name:     "inotify_watches",
		Required: false,
	}

	data, err := os.ReadFile(inotifyWatchesPath)
	if err != nil {
		result.Status = StatusWarn
		result.Message = "unavailable; live updates fall back to the scheduled refresh"
		return result
	}
	limit, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unreadable limit %q", strings.TrimSpace(string(data)))
		return result
	}

	result.Message = fmt.Sprintf("%d (watcher cap: %d)", limit, want)
	if limit < want {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("Run 'sysctl fs.inotify.max_user_watches=%d' to watch every directory", want)
		return result
	}
	result.Status = StatusPass
	return result
}

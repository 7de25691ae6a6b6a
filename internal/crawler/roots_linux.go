//go:build linux

package crawler

import (
	"bufio"
	"os"
	"strings"
)

// DefaultRoots returns the mount points of block-device backed filesystems,
// read from /proc/self/mounts. Loop devices (snaps, images) are left out.
// Falls back to "/" when the mount table is unreadable.
func DefaultRoots() []string {
	f, err := os.Open("/proc/self/mounts")
	if err != nil {
		return []string{"/"}
	}
	defer f.Close()

	var roots []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		dev, mnt := fields[0], unescapeMount(fields[1])
		if !strings.HasPrefix(dev, "/dev/") || strings.HasPrefix(dev, "/dev/loop") || seen[mnt] {
			continue
		}
		seen[mnt] = true
		roots = append(roots, mnt)
	}
	if len(roots) == 0 {
		return []string{"/"}
	}
	return roots
}

// unescapeMount decodes the octal escapes the kernel uses for spaces and
// tabs in mount points.
func unescapeMount(s string) string {
	r := strings.NewReplacer(`\040`, " ", `\011`, "\t", `\012`, "\n", `\134`, `\`)
	return r.Replace(s)
}

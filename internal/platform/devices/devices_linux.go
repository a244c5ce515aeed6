//go:build linux

package devices

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultSysfs = "/sys"

// count reads the PCI class of every device and counts display
// controllers (base class 0x03).
func count(_ context.Context, root string) (int, error) {
	if root == "" {
		root = defaultSysfs
	}
	dir := filepath.Join(root, "bus", "pci", "devices")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("listing pci devices: %w", err)
	}
	n := 0
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name(), "class"))
		if err != nil {
			continue
		}
		if isDisplayClass(strings.TrimSpace(string(data))) {
			n++
		}
	}
	return n, nil
}

func isDisplayClass(class string) bool {
	class = strings.TrimPrefix(strings.ToLower(class), "0x")
	return len(class) == 6 && strings.HasPrefix(class, "03")
}

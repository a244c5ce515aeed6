// Package regblob exports and imports registry subtrees as opaque .reg
// blobs by shelling out to reg.exe.
package regblob

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zjrosen/dockswap/internal/log"
	"github.com/zjrosen/dockswap/internal/syncengine"
	"github.com/zjrosen/dockswap/internal/titles/domain"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec // G204: fixed binary, paths from title config
}

// RegExe implements syncengine.RegistryBlobService with reg export and
// reg import through a temporary file.
type RegExe struct {
	Binary string
	TmpDir string
	Run    Runner
}

var _ syncengine.RegistryBlobService = (*RegExe)(nil)

// New returns a RegExe using reg.exe from PATH.
func New() *RegExe {
	return &RegExe{Binary: "reg", Run: execRunner}
}

// ExportSubtree exports path. A missing key yields domain.ErrSubtreeNotFound.
func (r *RegExe) ExportSubtree(ctx context.Context, path string) ([]byte, error) {
	dir, err := os.MkdirTemp(r.TmpDir, "dockswap-reg-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	file := filepath.Join(dir, "export.reg")
	out, err := r.run(ctx, "export", path, file, "/y")
	if err != nil {
		if notFound(out) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSubtreeNotFound, path)
		}
		return nil, fmt.Errorf("reg export %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	data, err := os.ReadFile(file) //nolint:gosec // G304: temp file we created
	if err != nil {
		return nil, fmt.Errorf("reading export of %s: %w", path, err)
	}
	log.Debug(log.CatRegistry, "Exported registry subtree", "path", path, "bytes", len(data))
	return data, nil
}

// ImportSubtree imports a blob produced by ExportSubtree.
func (r *RegExe) ImportSubtree(ctx context.Context, path string, data []byte) error {
	dir, err := os.MkdirTemp(r.TmpDir, "dockswap-reg-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	file := filepath.Join(dir, "import.reg")
	if err := os.WriteFile(file, data, 0o600); err != nil {
		return err
	}
	out, err := r.run(ctx, "import", file)
	if err != nil {
		return fmt.Errorf("reg import %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	log.Debug(log.CatRegistry, "Imported registry subtree", "path", path, "bytes", len(data))
	return nil
}

func (r *RegExe) run(ctx context.Context, args ...string) ([]byte, error) {
	bin := r.Binary
	if bin == "" {
		bin = "reg"
	}
	run := r.Run
	if run == nil {
		run = execRunner
	}
	return run(ctx, bin, args...)
}

func notFound(out []byte) bool {
	lower := bytes.ToLower(out)
	return bytes.Contains(lower, []byte("unable to find")) ||
		bytes.Contains(lower, []byte("cannot find"))
}

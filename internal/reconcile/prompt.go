package reconcile

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/huh"
	"github.com/sergi/go-diff/diffmatchpatch"
	"golang.org/x/term"

	"github.com/zjrosen/dockswap/internal/log"
)

const defaultDiffLines = 12

// ConfirmFunc asks a yes/no question. Yes keeps the stored snapshot.
type ConfirmFunc func(ctx context.Context, title, description string) (bool, error)

// PromptDecider asks the user on the terminal. When stdin is not a
// terminal the Fallback decides instead.
type PromptDecider struct {
	Fallback   Decider
	IsTerminal func() bool
	Confirm    ConfirmFunc
	DiffLines  int
}

// NewPromptDecider creates a decider prompting on stdin/stdout.
func NewPromptDecider(fallback Decider) *PromptDecider {
	return &PromptDecider{
		Fallback: fallback,
		IsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) //nolint:gosec // G115: fd fits in int
		},
		Confirm:   huhConfirm(os.Stdin, os.Stdout),
		DiffLines: defaultDiffLines,
	}
}

// Decide prompts for the conflict or defers to the fallback.
func (p *PromptDecider) Decide(ctx context.Context, c Conflict) (Resolution, error) {
	if p.IsTerminal == nil || !p.IsTerminal() || p.Confirm == nil {
		if p.Fallback == nil {
			return KeepStored, nil
		}
		return p.Fallback.Decide(ctx, c)
	}

	title := fmt.Sprintf("%s: settings changed outside of dockswap", c.Title.Name)
	keepStored, err := p.Confirm(ctx, title, describe(c, p.DiffLines))
	if err != nil {
		return KeepStored, fmt.Errorf("prompt for %s: %w", c.Path, err)
	}
	if keepStored {
		log.Info(log.CatReconcile, "User kept stored settings", "title", c.Title.Name, "path", c.Path)
		return KeepStored, nil
	}
	log.Info(log.CatReconcile, "User kept live settings", "title", c.Title.Name, "path", c.Path)
	return KeepLive, nil
}

func describe(c Conflict, maxLines int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", c.Path)
	fmt.Fprintf(&b, "Last synced:   %s\n", formatTime(c.LastCheck))
	fmt.Fprintf(&b, "Live modified: %s\n\n", formatTime(c.LiveModTime))
	b.WriteString(DiffSummary(c.Stored.Data, c.Live, c.Stored.Present, maxLines))
	b.WriteString("\n\nKeep stored restores the snapshot; Keep current replaces it.")
	return b.String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// DiffSummary renders a short line diff from stored to live. Lines removed
// from the stored snapshot are prefixed "- ", lines only in the live
// artifact "+ ". Non-text content is summarized by size.
func DiffSummary(stored, live []byte, storedPresent bool, maxLines int) string {
	if !storedPresent {
		return fmt.Sprintf("No stored snapshot for this state (live is %d bytes).", len(live))
	}
	if !utf8.Valid(stored) || !utf8.Valid(live) {
		return fmt.Sprintf("Binary content differs (stored %d bytes, live %d bytes).", len(stored), len(live))
	}
	if maxLines <= 0 {
		maxLines = defaultDiffLines
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(stored), string(live))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out []string
	hidden := 0
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		default:
			continue
		}
		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			if len(out) >= maxLines {
				hidden++
				continue
			}
			out = append(out, prefix+line)
		}
	}
	if len(out) == 0 {
		return "Contents are identical."
	}
	if hidden > 0 {
		out = append(out, fmt.Sprintf("(%d more changed lines)", hidden))
	}
	return strings.Join(out, "\n")
}

func huhConfirm(in io.Reader, out io.Writer) ConfirmFunc {
	return func(ctx context.Context, title, description string) (bool, error) {
		keepStored := true
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Keep stored").
				Negative("Keep current").
				Value(&keepStored),
		)).WithInput(in).WithOutput(out)
		if err := form.RunWithContext(ctx); err != nil {
			return false, err
		}
		return keepStored, nil
	}
}

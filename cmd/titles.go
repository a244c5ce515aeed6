package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/zjrosen/dockswap/internal/app"
	"github.com/zjrosen/dockswap/internal/flags"
	"github.com/zjrosen/dockswap/internal/paths"
	"github.com/zjrosen/dockswap/internal/titles/domain"
	"github.com/zjrosen/dockswap/internal/titles/importer"
	"github.com/zjrosen/dockswap/internal/titles/registry"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	errorCell   = cellStyle.Foreground(lipgloss.Color("9"))
)

var titlesCmd = &cobra.Command{
	Use:     "titles",
	Aliases: []string{"title"},
	Short:   "Manage the titles kept in sync",
}

var (
	listSource string

	addLocation   string
	addExecutable string
	addFiles      []string
	addRegistry   []string
	addNoSeed     bool

	entryID string
)

var titlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered titles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withServices(func(svc *app.Services) error {
			titles := svc.Titles.List(registry.ListQuery{Source: listSource})
			if len(titles) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No titles registered. Add one with \"dockswap titles add\".")
				return nil
			}
			renderTitles(cmd.OutOrStdout(), titles)
			return nil
		})
	},
}

var titlesAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a title",
	Long: `Register a title and the settings that follow the environment state.

Locations of settings may use $TITLE_DIR, $TITLE_NAME, $TITLE_ID and
$TITLE_EXE as well as environment variables ($HOME, %APPDATA%). Use
$TITLE_DIR for files inside the install directory.

Unless --no-seed is given (or the seed-on-add flag is off), the current
settings are captured for both states.

Examples:
  dockswap titles add "Hollow Knight" --location ~/Games/HK \
    --exe hollow_knight.x86_64 --file '$HOME/.config/unity3d/Team Cherry/Hollow Knight/prefs'
  dockswap titles add Quake --location 'C:\Games\Quake' --registry 'HKCU\Software\id\Quake'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(addFiles)+len(addRegistry) == 0 {
			return errors.New("at least one --file or --registry setting is required")
		}
		t := domain.NewTitle(args[0], paths.ExpandHome(addLocation), addExecutable)
		for _, f := range addFiles {
			t.AddSetting(domain.KindFile, f)
		}
		for _, r := range addRegistry {
			t.AddSetting(domain.KindRegistry, r)
		}
		t.Validate()

		return withServices(func(svc *app.Services) error {
			if err := svc.Titles.Add(t); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Added %s (%s)\n", t.Name, t.ID)
			if !t.Syncable() {
				fmt.Fprintf(out, "Warning: %s is excluded from syncs: %s\n", t.Name, t.ErrorState)
				return nil
			}
			if !addNoSeed && svc.Flags.Enabled(flags.FlagSeedOnAdd) {
				return seed(cmd.Context(), out, svc, t)
			}
			return nil
		})
	},
}

var titlesRemoveCmd = &cobra.Command{
	Use:     "remove ID|NAME",
	Aliases: []string{"rm"},
	Short:   "Unregister a title and delete its stored settings",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(func(svc *app.Services) error {
			t, err := svc.Titles.Lookup(args[0])
			if err != nil {
				return err
			}
			if err := svc.Titles.Remove(t.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", t.Name)
			return nil
		})
	},
}

var titlesEnableCmd = &cobra.Command{
	Use:   "enable ID|NAME",
	Short: "Re-enable a title's settings entries and re-check the title",
	Long: `Re-enable settings entries that were disabled, for example because
their live file was missing during a sync. Without --entry every entry of
the title is enabled. The title's location and executable are checked
again, clearing its error state when they are back.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], true)
	},
}

var titlesDisableCmd = &cobra.Command{
	Use:   "disable ID|NAME",
	Short: "Exclude a title's settings entries from syncs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, args[0], false)
	},
}

var titlesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Register titles from a YAML manifest",
	Long: `Register every title listed in a YAML manifest. Use "-" to read stdin.

  titles:
    - name: Hollow Knight
      location: ~/Games/HK
      executable: hollow_knight.x86_64
      settings:
        - kind: file
          location: $HOME/.config/unity3d/Team Cherry/Hollow Knight/prefs

Titles whose ID is already registered are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening manifest: %w", err)
			}
			defer f.Close()
			in = f
		}
		titles, err := importer.Parse(in)
		if err != nil {
			return err
		}

		return withServices(func(svc *app.Services) error {
			res := importer.Import(svc.Titles, titles)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d titles, skipped %d\n", len(res.Added), len(res.Skipped))
			for _, err := range res.Errors {
				fmt.Fprintf(out, "  %s\n", errorCell.Render(err.Error()))
			}
			if svc.Flags.Enabled(flags.FlagSeedOnAdd) {
				for _, t := range res.Added {
					if !t.Syncable() {
						continue
					}
					if err := seed(cmd.Context(), out, svc, t); err != nil {
						return err
					}
				}
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d titles could not be imported", len(res.Errors))
			}
			return nil
		})
	},
}

func init() {
	titlesListCmd.Flags().StringVar(&listSource, "source", "", "only titles from this source (manual, import)")

	titlesAddCmd.Flags().StringVarP(&addLocation, "location", "l", "", "install directory of the title (required)")
	titlesAddCmd.Flags().StringVarP(&addExecutable, "exe", "e", "", "executable, relative to the location")
	titlesAddCmd.Flags().StringArrayVarP(&addFiles, "file", "f", nil, "settings file (repeatable)")
	titlesAddCmd.Flags().StringArrayVarP(&addRegistry, "registry", "r", nil, "registry subtree (repeatable)")
	titlesAddCmd.Flags().BoolVar(&addNoSeed, "no-seed", false, "do not capture current settings for both states")
	_ = titlesAddCmd.MarkFlagRequired("location")

	titlesEnableCmd.Flags().StringVar(&entryID, "entry", "", "only this settings entry")
	titlesDisableCmd.Flags().StringVar(&entryID, "entry", "", "only this settings entry")

	titlesCmd.AddCommand(titlesListCmd, titlesAddCmd, titlesRemoveCmd, titlesEnableCmd, titlesDisableCmd, titlesImportCmd)
	rootCmd.AddCommand(titlesCmd)
}

func withServices(fn func(svc *app.Services) error) error {
	svc, err := openServices()
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	return fn(svc)
}

// seed captures a new title's live settings into both state slots.
func seed(ctx context.Context, out io.Writer, svc *app.Services, t *domain.Title) error {
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := svc.Engine.Seed(ctx, t, svc.States.A, svc.States.B)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Captured %d settings of %s for %s and %s\n",
		len(report.Entries)-report.Failures(), t.Name, svc.States.A, svc.States.B)
	for _, e := range report.Entries {
		if e.Err != nil {
			fmt.Fprintf(out, "  %s\n", errorCell.Render(e.Err.Error()))
		}
	}
	return nil
}

func setEnabled(cmd *cobra.Command, idOrName string, enabled bool) error {
	return withServices(func(svc *app.Services) error {
		t, err := svc.Titles.Lookup(idOrName)
		if err != nil {
			return err
		}
		changed := 0
		var missing bool
		err = svc.Titles.Update(t.ID, func(t *domain.Title) {
			if entryID != "" {
				e, ok := t.Setting(entryID)
				if !ok {
					missing = true
					return
				}
				e.Enabled = enabled
				changed++
			} else {
				for _, e := range t.Settings {
					if e.Enabled != enabled {
						e.Enabled = enabled
						changed++
					}
				}
			}
			if enabled {
				t.Validate()
			}
		})
		if err != nil {
			return err
		}
		if missing {
			return &domain.EntryNotFoundError{TitleID: t.ID, EntryID: entryID}
		}
		verb := "Disabled"
		if enabled {
			verb = "Enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d settings of %s\n", verb, changed, t.Name)
		if !t.Syncable() {
			fmt.Fprintf(cmd.OutOrStdout(), "Warning: %s is excluded from syncs: %s\n", t.Name, t.ErrorState)
		}
		return nil
	})
}

// renderTitles writes a table of titles to w.
func renderTitles(w io.Writer, titles []*domain.Title) {
	rows := make([][]string, 0, len(titles))
	broken := make(map[int]bool)
	for i, t := range titles {
		enabled := len(t.EnabledSettings())
		status := "ok"
		if !t.Syncable() {
			status = t.ErrorState.String()
			broken[i] = true
		}
		state := string(t.Fingerprint)
		if state == "" {
			state = "-"
		}
		rows = append(rows, []string{
			ansi.Truncate(t.Name, maxNameWidth, "…"),
			shortID(t.ID),
			state,
			fmt.Sprintf("%d/%d", enabled, len(t.Settings)),
			formatSync(t.LastSync),
			status,
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("NAME", "ID", "STATE", "SETTINGS", "LAST SYNC", "STATUS").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if broken[row] {
				return errorCell
			}
			return cellStyle
		})
	fmt.Fprintln(w, tbl.Render())
}

const (
	maxNameWidth = 32
	maxPathWidth = 60
)

// shortenPath keeps the end of a long path, where the file name is.
func shortenPath(p string) string {
	w := ansi.StringWidth(p)
	if w <= maxPathWidth {
		return p
	}
	return ansi.TruncateLeft(p, w-maxPathWidth+1, "…")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatSync(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04")
}

package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jask/moneyimport/internal/service"
	"github.com/jask/moneyimport/internal/tui"
)

// fileFlags are the per-file options shared by preview and import.
type fileFlags struct {
	accounts map[string]string
	mappings map[string]string
}

func (f *fileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringToStringVar(&f.accounts, "account", nil, "account label per file, as file=label")
	cmd.Flags().StringToStringVar(&f.mappings, "mapping", nil, "custom column mapping per file, as file=mapping")
}

// load reads the named files. Flags are keyed by base name.
func (f *fileFlags) load(paths []string) ([]service.File, error) {
	known := map[string]bool{}
	files := make([]service.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		name := filepath.Base(p)
		known[name] = true
		files = append(files, service.File{
			Name:    name,
			Data:    data,
			Account: f.accounts[name],
			Mapping: f.mappings[name],
		})
	}
	for _, m := range []map[string]string{f.accounts, f.mappings} {
		for name := range m {
			if !known[name] {
				return nil, fmt.Errorf("flag refers to %q, which is not being imported", name)
			}
		}
	}
	return files, nil
}

func newPreviewCommand(a *app) *cobra.Command {
	var ff fileFlags
	cmd := &cobra.Command{
		Use:   "preview FILE...",
		Short: "Show what importing the files would do, without writing anything",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := ff.load(args)
			if err != nil {
				return err
			}
			p, err := a.imports.Preview(cmd.Context(), files)
			if err != nil {
				return err
			}
			a.imports.Discard(p.Handle)
			fmt.Fprintln(cmd.OutOrStdout(), tui.RenderPreview(p, 0))
			return nil
		},
	}
	ff.register(cmd)
	return cmd
}

func newImportCommand(a *app) *cobra.Command {
	var ff fileFlags
	var yes bool
	var exclude []string
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Preview, confirm and commit statement files as one import session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			files, err := ff.load(args)
			if err != nil {
				return err
			}
			p, err := a.imports.Preview(ctx, files)
			if err != nil {
				return err
			}

			include := includedFiles(p, exclude)
			if !yes {
				var ok bool
				var chosen []string
				chosen, ok, err = tui.Confirm(p, cmd.InOrStdin(), out)
				if err != nil {
					a.imports.Discard(p.Handle)
					return err
				}
				if !ok {
					a.imports.Discard(p.Handle)
					fmt.Fprintln(out, "import cancelled")
					return nil
				}
				include = intersect(withFailed(p, chosen), include)
			} else {
				fmt.Fprintln(out, tui.RenderPreview(p, 0))
			}

			res, err := a.imports.Confirm(ctx, p.Handle, service.ConfirmOptions{Include: include})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, tui.RenderCommit(res))
			return nil
		},
	}
	ff.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "commit without the interactive confirmation")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "file names to leave out of the commit")
	return cmd
}

// includedFiles is every previewed file except the excluded ones. Failed
// files stay in so their errors are reported with the session.
func includedFiles(p service.PreviewResult, exclude []string) []string {
	skip := map[string]bool{}
	for _, name := range exclude {
		skip[filepath.Base(name)] = true
	}
	out := []string{}
	for _, f := range p.Files {
		if !skip[f.Filename] {
			out = append(out, f.Filename)
		}
	}
	return out
}

// withFailed adds the files that failed to parse to an interactive
// selection, in preview order. The picker never offers them.
func withFailed(p service.PreviewResult, chosen []string) []string {
	picked := map[string]bool{}
	for _, name := range chosen {
		picked[name] = true
	}
	out := []string{}
	for _, f := range p.Files {
		if f.Error != "" || picked[f.Filename] {
			out = append(out, f.Filename)
		}
	}
	return out
}

func intersect(a, b []string) []string {
	in := map[string]bool{}
	for _, s := range b {
		in[s] = true
	}
	out := []string{}
	for _, s := range a {
		if in[s] {
			out = append(out, s)
		}
	}
	return out
}

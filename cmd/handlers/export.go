package handlers

import (
	"fmt"

	"github.com/spf13/cobra"

	"riskradar/internal/render"
)

func newExportCmd() *cobra.Command {
	var (
		date   string
		format string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the day's digests to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			r := render.New(a.store, a.clock, a.cfg.Location())
			switch format {
			case "json":
				if out == "" {
					out = "digest.json"
				}
				_, err = r.WriteJSON(date, out)
				return err
			case "markdown", "md":
				if out == "" {
					out = "digest.md"
				}
				return r.WriteMarkdown(date, out)
			default:
				return fmt.Errorf("unknown format %q (want json or markdown)", format)
			}
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "export date as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or markdown")
	cmd.Flags().StringVar(&out, "out", "", "output path (default digest.json / digest.md)")
	return cmd
}

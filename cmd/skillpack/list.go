package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jingkaihe/skillpack/pkg/convert"
	"github.com/jingkaihe/skillpack/pkg/presenter"
	"github.com/jingkaihe/skillpack/pkg/skills"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type listEntry struct {
	Name        string `json:"name" yaml:"name"`
	Output      string `json:"output" yaml:"output"`
	Source      string `json:"source" yaml:"source"`
	Description string `json:"description" yaml:"description"`
	Resources   bool   `json:"resources" yaml:"resources"`
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List discovered skills with their resolved name and description",
	Long: `List every skill below the source directory as it would be converted:
the resolved name, output directory, description and whether a resources/
directory is shipped with it. Nothing is written.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("format")

		converter, err := convert.New(cfg)
		if err != nil {
			return err
		}

		planned, report, err := converter.Plan(cmd.Context())
		if err != nil {
			return err
		}
		for _, f := range report.Failures {
			presenter.Failure(f.Subject, f.Err)
		}

		entries := make([]listEntry, 0, len(planned))
		for _, r := range planned {
			entries = append(entries, listEntry{
				Name:        r.Metadata.Name,
				Output:      r.OutputName,
				Source:      r.Unit.SourcePath,
				Description: r.Metadata.Description,
				Resources:   r.Unit.HasResources(),
			})
		}

		if len(entries) == 0 && format == "table" {
			presenter.Info("No skills found")
			return exitStatus(report)
		}

		if err := writeList(cmd.OutOrStdout(), entries, format); err != nil {
			return err
		}
		return exitStatus(report)
	},
}

func init() {
	listCmd.Flags().StringP("format", "f", "table", "Output format (table, json, yaml)")
}

func writeList(w io.Writer, entries []listEntry, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return errors.Wrap(err, "failed to encode yaml")
		}
		return enc.Close()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tOUTPUT\tRESOURCES\tDESCRIPTION")
		fmt.Fprintln(tw, "----\t------\t---------\t-----------")
		for _, e := range entries {
			resources := "no"
			if e.Resources {
				resources = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Name, e.Output, resources, skills.TruncateWithEllipsis(e.Description, 60))
		}
		return tw.Flush()
	default:
		return errors.Errorf("unsupported format %q, must be one of: table, json, yaml", format)
	}
}

package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/yomitori/internal/models"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Show which model files are present",
	Long: `Show the layout, recognition and charset artifacts the pipeline loads and
whether each is present in the models directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := models.GetModelsDir(GetConfig().ModelsDir)
		status := models.Inspect(dir)

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}

		ok := color.New(color.FgGreen).SprintFunc()
		missing := color.New(color.FgRed).SprintFunc()
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Models directory: %s\n\n", dir)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "NAME\tTYPE\tSTATUS\tPATH")
		for _, s := range status {
			state := ok("ok")
			switch {
			case !s.Available:
				state = missing("missing")
			case s.Stale:
				state = missing("stale " + s.Version)
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Type, state, s.Path)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().Bool("json", false, "print the status as JSON")
}

package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/services"
)

var setsCmd = &cobra.Command{
	Use:   "sets",
	Short: "Fetches every set, reconciles aliases and writes the canonical set list.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Cards.RunSets(cmd.Context(), nil)
		if err != nil {
			return err
		}
		printMerges(result.Merges)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setsCmd)
}

func printMerges(merges []services.SetMerge) {
	if len(merges) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Alias", "Code", "Merged Into", "Strategy"})
	for _, m := range merges {
		t.AppendRow(table.Row{m.Alias, m.AliasCode, m.Primary, m.Strategy})
	}
	t.Render()
}

package commands

import (
	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
)

var cardsSkipSets bool

var cardsCmd = &cobra.Command{
	Use:   "cards [--skip-sets]",
	Short: "Fetches every card from the API, normalizes it and writes cards and prices.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		var mapping *models.SetMapping
		if cardsSkipSets {
			sets, err := a.Snapshots.Sets(ctx)
			if err != nil {
				return err
			}
			mapping = models.MappingFromSets(sets)
		} else {
			result, err := a.Cards.RunSets(ctx, nil)
			if err != nil {
				return err
			}
			mapping = result.Mapping
		}

		_, err = a.Cards.RunCards(ctx, mapping, nil)
		return err
	},
}

func init() {
	cardsCmd.Flags().BoolVar(&cardsSkipSets, "skip-sets", false, "Use the stored sets snapshot instead of refetching sets.")
	rootCmd.AddCommand(cardsCmd)
}

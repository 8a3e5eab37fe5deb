package commands

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/services"
)

var speciesCmd = &cobra.Command{
	Use:   "species",
	Short: "Refreshes the local species table from the species API.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		species, err := services.NewSpeciesService(cfg.Species, services.RetryPolicyFromConfig(cfg.API)).FetchSpecies(cmd.Context())
		if err != nil {
			return err
		}
		if err := services.SaveSpeciesFile(cfg.Species.File, species); err != nil {
			return err
		}
		log.Printf("Saved %d species to %s", len(species), cfg.Species.File)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(speciesCmd)
}

package commands

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/config"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/services"
)

var (
	jpKeyword  string
	jpMaxPages int
)

var scrapeJPCmd = &cobra.Command{
	Use:   "scrape-jp [--keyword <text>] [--max-pages <n>]",
	Short: "Scrapes the Japanese listing site, resuming from the checkpoint when one exists.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, func(cfg *config.Config) {
			if cmd.Flags().Changed("max-pages") {
				cfg.Scraper.MaxPages = jpMaxPages
			}
		})
		if err != nil {
			return err
		}
		defer a.Close()

		mapping := models.NewSetMapping()
		sets, err := a.Snapshots.Sets(ctx)
		switch {
		case err == nil:
			mapping = models.MappingFromSets(sets)
		case services.IsSnapshotMissing(err):
			log.Printf("No sets snapshot in %s, keeping scraped set codes", a.Snapshots.Location())
		default:
			return err
		}

		result, err := a.JP.Run(ctx, services.JPQuery{Keyword: jpKeyword}, mapping, nil)
		if err != nil {
			return err
		}
		log.Printf("Scraped %d cards from %d pages (%d failures)", len(result.Cards), result.Pages, len(result.Failures))
		return nil
	},
}

func init() {
	scrapeJPCmd.Flags().StringVar(&jpKeyword, "keyword", "", "Only list cards matching this search text.")
	scrapeJPCmd.Flags().IntVar(&jpMaxPages, "max-pages", 0, "Stop after this many listing pages (0 means all).")
	rootCmd.AddCommand(scrapeJPCmd)
}

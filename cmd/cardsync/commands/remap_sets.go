package commands

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/codyseavey/tcg-tracker/cardsync/internal/models"
	"github.com/codyseavey/tcg-tracker/cardsync/internal/services"
)

var remapPrevious string

var remapSetsCmd = &cobra.Command{
	Use:   "remap-sets [--previous <sets.json>]",
	Short: "Refetches sets and rewrites stored cards whose set names no longer exist.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		var previous []models.SetRecord
		if remapPrevious != "" {
			previous, err = services.LoadSetSnapshot(remapPrevious)
		} else {
			previous, err = a.Snapshots.Sets(ctx)
		}
		if err != nil {
			return err
		}
		cards, err := a.Snapshots.Cards(ctx)
		if err != nil {
			return err
		}
		prices, err := a.Snapshots.Prices(ctx)
		if err != nil && !services.IsSnapshotMissing(err) {
			return err
		}

		current, err := a.Cards.RunSets(ctx, nil)
		if err != nil {
			return err
		}

		result := a.Reconciler.RemapSnapshot(previous, current.Sets, cards)
		printMerges(result.Merges)
		for _, name := range result.Unmapped {
			log.Printf("Remap: no surviving set for %q", name)
		}

		if err := a.Sink.WriteSets(ctx, result.Sets); err != nil {
			return fmt.Errorf("failed to write sets: %w", err)
		}
		if err := a.Sink.WriteCards(ctx, result.Cards); err != nil {
			return fmt.Errorf("failed to write cards: %w", err)
		}
		if prices != nil {
			if err := a.Sink.WritePrices(ctx, services.RemapPrices(prices, result.Renamed)); err != nil {
				return fmt.Errorf("failed to write prices: %w", err)
			}
		}

		if len(result.Renamed) > 0 {
			old := make([]string, 0, len(result.Renamed))
			for code := range result.Renamed {
				old = append(old, code)
			}
			if err := a.Sink.DeleteCards(ctx, old); err != nil {
				return fmt.Errorf("failed to delete renamed cards: %w", err)
			}
		}
		log.Printf("Remap: %d cards renamed, %d set names unmapped", len(result.Renamed), len(result.Unmapped))
		return nil
	},
}

func init() {
	remapSetsCmd.Flags().StringVar(&remapPrevious, "previous", "", "Sets snapshot file taken before the refresh (defaults to the stored sets snapshot).")
	rootCmd.AddCommand(remapSetsCmd)
}

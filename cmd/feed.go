package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bilgisen/feedcore/internal/models"
	"github.com/urfave/cli/v2"
)

func feedCmd() *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "Fetch and assemble the feed once and print it",
		Description: `Runs one update cycle and writes the assembled feed to stdout as JSON.

Use --visit to simulate browsing history, e.g.:

feedcore feed --visit https://example.com/a --visit https://foo.com --summary`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "visit",
				Usage: "URL treated as recently visited (repeatable)",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Indent the JSON output",
			},
			&cli.BoolFlag{
				Name:  "summary",
				Usage: "Print one line per card instead of JSON",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			svc, err := buildServices(c.Context, cfg, c.StringSlice("visit"))
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := context.WithTimeout(c.Context, 2*cfg.HTTPTimeout)
			defer cancel()

			result, err := svc.feed.GetFeed(ctx)
			if err != nil {
				return err
			}

			if c.Bool("summary") {
				printSummary(result)
				return nil
			}

			enc := json.NewEncoder(os.Stdout)
			if c.Bool("pretty") {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(result)
		},
	}
}

func printSummary(f models.Feed) {
	fmt.Printf("hash %s, %d items, %d pages", f.Hash, f.ItemCount(), len(f.Pages))
	if f.Error != models.FeedErrorNone {
		fmt.Printf(", error %s", f.Error)
	}
	fmt.Println()

	if f.FeaturedItem != nil {
		fmt.Printf("featured  %6.2f  %s\n", f.FeaturedItem.Score, f.FeaturedItem.URL)
	}
	for i, page := range f.Pages {
		for _, card := range page.Items {
			if len(card.Items) == 0 {
				fmt.Printf("page %-3d %-17s\n", i+1, card.CardType)
				continue
			}
			for _, item := range card.Items {
				fmt.Printf("page %-3d %-17s %6.2f  %s\n", i+1, card.CardType, item.Score, item.URL)
			}
		}
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
)

func suggestCmd() *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Print publisher suggestions for the browsing history",
		Description: `Loads the similarity matrix and ranks publishers the user has not
subscribed to yet. History comes from HISTORY_DB_PATH or from --visit.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "visit",
				Usage: "URL treated as recently visited (repeatable)",
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

			ids, err := svc.suggestions.SuggestedPublisherIDs(ctx)
			if err != nil {
				return err
			}
			directory, err := svc.directory.GetOrFetchPublishers(ctx)
			if err != nil {
				return err
			}

			for i, id := range ids {
				name := id
				if p, ok := directory[id]; ok && p.Name != "" {
					name = p.Name
				}
				fmt.Printf("%2d. %s (%s)\n", i+1, name, id)
			}
			return nil
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Inspect the stored records",
		Commands: []*cli.Command{
			listProspectsCommand(),
			listMeetingsCommand(),
		},
	}
}

func listProspectsCommand() *cli.Command {
	var (
		cfg    config
		offset int64
		limit  int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "offset",
			Usage:       "Skip count for pagination",
			Destination: &offset,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Max records to show",
			Value:       50,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "prospects",
		Usage: "List saved prospect records",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			records, err := repo.ListProspects(ctx, int(offset), int(limit))
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Fprintln(c.Root().Writer, "No prospect records.")
				return nil
			}

			for _, rec := range records {
				fmt.Fprintf(c.Root().Writer, "%s  %-12s  %s (%s)\n", rec.ID, rec.Status, rec.Name, rec.Phone)
				fmt.Fprintf(c.Root().Writer, "    budget: %s | authority: %s | need: %s | timeline: %s\n",
					rec.BANT.Budget, rec.BANT.Authority, rec.BANT.Need, rec.BANT.Timeline)
				if rec.Notes != "" {
					fmt.Fprintf(c.Root().Writer, "    notes: %s\n", rec.Notes)
				}
			}
			return nil
		},
	}
}

func listMeetingsCommand() *cli.Command {
	var (
		cfg  config
		days int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "days",
			Usage:       "Show meetings within this many days from today",
			Value:       30,
			Destination: &days,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "meetings",
		Usage: "List scheduled meetings",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			meetings, err := repo.ListMeetings(ctx, time.Now(), int(days))
			if err != nil {
				return err
			}

			if len(meetings) == 0 {
				fmt.Fprintln(c.Root().Writer, "No meetings scheduled.")
				return nil
			}

			for _, m := range meetings {
				fmt.Fprintf(c.Root().Writer, "%s  %s %s  %s (%s)  %dmin %s\n",
					m.ID, m.Slot.Date, m.Slot.Time, m.ProspectName, m.ProspectPhone,
					m.DurationMinutes, m.MeetingType)
				fmt.Fprintf(c.Root().Writer, "    %s\n", m.MeetingLink)
			}
			return nil
		},
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bantam-dev/bantam/pkg/model"
	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg    config
		tenant string
		phone  string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "tenant",
			Aliases:     []string{"t"},
			Usage:       "Tenant ID",
			Value:       "default",
			Sources:     cli.EnvVars("BANTAM_TENANT"),
			Destination: &tenant,
		},
		&cli.StringFlag{
			Name:        "phone",
			Usage:       "Simulated prospect phone number",
			Value:       "+56912345678",
			Sources:     cli.EnvVars("BANTAM_PHONE"),
			Destination: &phone,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, sessionFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the agent locally as a simulated prospect",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg.setupLogger()

			registry, repo, err := cfg.newRegistry(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			rl, err := readline.New("You: ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize terminal")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "Chat session for %s (%s). Type 'exit' to quit.\n\n", phone, tenant)

			send := func(text string) error {
				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Suffix = " thinking..."
				sp.Start()

				reply, err := registry.HandleMessage(ctx, &model.InboundMessage{
					TenantID:  tenant,
					ContactID: phone,
					Text:      text,
				})
				sp.Stop()
				if err != nil {
					return err
				}

				fmt.Fprintf(c.Root().Writer, "Agent: %s\n", reply.ResponseText)
				if reply.Qualified {
					fmt.Fprintf(c.Root().Writer, "  [prospect qualified]\n")
				}
				if reply.MeetingScheduled {
					fmt.Fprintf(c.Root().Writer, "  [meeting scheduled]\n")
				}
				fmt.Fprintln(c.Root().Writer)
				return nil
			}

			// Agent opens the conversation
			if err := send("Hi"); err != nil {
				return err
			}

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}

				if err := send(line); err != nil {
					return err
				}
			}

			key := model.NewSessionKey(tenant, phone)
			if err := registry.Close(ctx, key); err != nil &&
				!errors.Is(err, model.ErrSessionNotFound) {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "Bye!\n")
			return nil
		},
	}
}

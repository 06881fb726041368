package cli

import (
	"context"

	"github.com/bantam-dev/bantam/pkg/utils/logging"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	// Local development keeps secrets in .env; absence is fine
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "bantam",
		Usage: "Inbound prospect qualification agent (BANT)",
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			listCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/memopress/memopress/lib/logger"
)

var log, _ = logger.New("memopress")

func main() {
	app := &cli.App{
		Name:  "memopress",
		Usage: "Publish long-form text through a size-bounded ledger memo field",
		Commands: []*cli.Command{
			publishCmd,
			resumeCmd,
			cancelCmd,
			statusCmd,
			operationsCmd,
			feedCmd,
			readCmd,
			authorsCmd,
			genesisCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalln("run", "ERROR", err)
	}
}

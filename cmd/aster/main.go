package main

import (
	"os"

	logging "github.com/ipfs/go-log/v2"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"

	"github.com/asterchain/aster/build"
)

var log = logging.Logger("main")

const flagRepo = "repo"

func main() {
	logging.SetLogLevel("*", "INFO")

	app := &cli.App{
		Name:    "aster",
		Usage:   "aster chain state tool",
		Version: build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagRepo,
				EnvVars: []string{"ASTER_PATH"},
				Value:   "~/.aster",
				Usage:   "Specify aster repo path",
			},
		},
		Commands: []*cli.Command{
			genesisCmd,
			chainCmd,
			stateCmd,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Errorf("%+v", err)
		os.Exit(1)
	}
}

func repoPath(cctx *cli.Context) (string, error) {
	return homedir.Expand(cctx.String(flagRepo))
}

package cmds

import (
	"github.com/urfave/cli/v2"
)

var InjectedCmds = &cli.Command{
	Name:        "injected",
	Usage:       "injected provider bridges",
	Subcommands: []*cli.Command{listInjectedCmd},
}

var listInjectedCmd = &cli.Command{
	Name:  "list",
	Usage: "list attached injected provider bridges",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		providers, err := api.ListInjectedProviders(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(providers)
	},
}

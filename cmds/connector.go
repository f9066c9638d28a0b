package cmds

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kadena-community/cabinet-gateway/core"
	"github.com/kadena-community/cabinet-gateway/types"
)

var ConnectorCmds = &cli.Command{
	Name:  "connector",
	Usage: "inspect and drive the wallet connectors",
	Subcommands: []*cli.Command{
		listConnectorCmd,
		connectorStateCmd,
		priorityCmd,
		activateCmd,
		eagerCmd,
		deactivateCmd,
		selectAccountCmd,
		selectWalletCmd,
		signCmd,
	},
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, " ", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func requireArgs(cctx *cli.Context, n int) error {
	if cctx.NArg() != n {
		return fmt.Errorf("expect %d arguments, got %d", n, cctx.NArg())
	}
	return nil
}

var listConnectorCmd = &cli.Command{
	Name:  "list",
	Usage: "list registered connectors and their state",
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		connectors, err := api.ListConnectors(cctx.Context)
		if err != nil {
			return err
		}
		return printJSON(connectors)
	},
}

var connectorStateCmd = &cli.Command{
	Name:      "state",
	ArgsUsage: "<connector>",
	Action: func(cctx *cli.Context) error {
		if err := requireArgs(cctx, 1); err != nil {
			return err
		}
		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		state, err := api.ConnectorState(cctx.Context, cctx.Args().First())
		if err != nil {
			return err
		}
		return printJSON(state)
	},
}

var priorityCmd = &cli.Command{
	Name:  "priority",
	Usage: "show the connector currently having priority",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "watch", Usage: "keep printing the priority state on every change"},
	},
	Action: func(cctx *cli.Context) error {
		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		state, err := api.PriorityState(cctx.Context)
		if err != nil {
			return err
		}
		if err := printJSON(state); err != nil {
			return err
		}
		if !cctx.Bool("watch") {
			return nil
		}

		events, err := api.StateEvents(cctx.Context)
		if err != nil {
			return err
		}
		for state := range events {
			if err := printJSON(state); err != nil {
				return err
			}
		}
		return nil
	},
}

var activateCmd = &cli.Command{
	Name:      "activate",
	Usage:     "connect a wallet, WalletConnect prints the pairing uri while waiting",
	ArgsUsage: "<connector>",
	Action: func(cctx *cli.Context) error {
		if err := requireArgs(cctx, 1); err != nil {
			return err
		}
		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		name := cctx.Args().First()
		done := make(chan struct{})
		defer close(done)
		if core.ConnectorName(name) == core.WalletConnect {
			go func() {
				ticker := time.NewTicker(500 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
					}
					if uri, err := api.WalletConnectPairingURI(cctx.Context); err == nil && uri != "" {
						fmt.Fprintf(os.Stderr, "scan with your wallet: %s\n", uri)
						return
					}
				}
			}()
		}

		if err := api.Activate(cctx.Context, name); err != nil {
			return err
		}
		state, err := api.ConnectorState(cctx.Context, name)
		if err != nil {
			return err
		}
		return printJSON(state)
	},
}

var eagerCmd = &cli.Command{
	Name:      "eager",
	Usage:     "silently restore a previous session",
	ArgsUsage: "<connector>",
	Action: func(cctx *cli.Context) error {
		if err := requireArgs(cctx, 1); err != nil {
			return err
		}
		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return api.ConnectEagerly(cctx.Context, cctx.Args().First())
	},
}

var deactivateCmd = &cli.Command{
	Name:      "deactivate",
	ArgsUsage: "<connector>",
	Action: func(cctx *cli.Context) error {
		if err := requireArgs(cctx, 1); err != nil {
			return err
		}
		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return api.Deactivate(cctx.Context, cctx.Args().First())
	},
}

var selectAccountCmd = &cli.Command{
	Name:      "select-account",
	Usage:     "pick one of the shared accounts of a multi-account wallet",
	ArgsUsage: "<connector> <account>",
	Action: func(cctx *cli.Context) error {
		if err := requireArgs(cctx, 2); err != nil {
			return err
		}
		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		name := cctx.Args().Get(0)
		if err := api.SelectAccount(cctx.Context, name, cctx.Args().Get(1)); err != nil {
			return err
		}
		state, err := api.ConnectorState(cctx.Context, name)
		if err != nil {
			return err
		}
		return printJSON(state)
	},
}

var selectWalletCmd = &cli.Command{
	Name:      "select-wallet",
	Usage:     "remember the wallet and reconnect it",
	ArgsUsage: "<connector>",
	Action: func(cctx *cli.Context) error {
		if err := requireArgs(cctx, 1); err != nil {
			return err
		}
		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		return api.SelectWallet(cctx.Context, cctx.Args().First())
	},
}

var signCmd = &cli.Command{
	Name:      "sign",
	Usage:     "sign a pact command, read as json from the argument or stdin",
	ArgsUsage: "[command-json]",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "connector", Usage: "connector to sign with, the priority connector by default"},
	},
	Action: func(cctx *cli.Context) error {
		var cmd types.SignCommand
		if cctx.NArg() > 0 {
			if err := json.Unmarshal([]byte(cctx.Args().First()), &cmd); err != nil {
				return fmt.Errorf("parse command: %w", err)
			}
		} else if err := json.NewDecoder(os.Stdin).Decode(&cmd); err != nil {
			return fmt.Errorf("parse command: %w", err)
		}

		api, closer, err := NewCabinetClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		res, err := api.SignTx(cctx.Context, cctx.String("connector"), &cmd)
		if err != nil {
			return err
		}
		if err := printJSON(res); err != nil {
			return err
		}
		if res.Status != types.SignSuccessStatus {
			return fmt.Errorf("sign failed")
		}
		return nil
	},
}

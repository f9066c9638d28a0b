package cmds

import (
	"fmt"

	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/urfave/cli/v2"

	"github.com/kadena-community/cabinet-gateway/utils"
)

var TokenCmds = &cli.Command{
	Name:        "token",
	Usage:       "manage api tokens of the local repo",
	Subcommands: []*cli.Command{createTokenCmd},
}

var createTokenCmd = &cli.Command{
	Name:      "create",
	Usage:     "sign a token with the repo secret",
	ArgsUsage: "<name>",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "perm", Usage: "admin, sign, write or read", Value: string(utils.PermRead)},
	},
	Action: func(cctx *cli.Context) error {
		if err := requireArgs(cctx, 1); err != nil {
			return err
		}
		perm := auth.Permission(cctx.String("perm"))
		switch perm {
		case utils.PermAdmin, utils.PermSign, utils.PermWrite, utils.PermRead:
		default:
			return fmt.Errorf("invalid permission %s", perm)
		}

		repo, err := RepoPath(cctx)
		if err != nil {
			return err
		}
		jwt, err := utils.NewLocalJwtClient(repo)
		if err != nil {
			return err
		}
		token, err := jwt.NewToken(cctx.Args().First(), perm)
		if err != nil {
			return err
		}
		fmt.Println(string(token))
		return nil
	},
}

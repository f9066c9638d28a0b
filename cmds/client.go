package cmds

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/filecoin-project/go-jsonrpc"
	"github.com/mitchellh/go-homedir"
	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli/v2"

	"github.com/kadena-community/cabinet-gateway/api"
	"github.com/kadena-community/cabinet-gateway/utils"
)

// RepoPath expands the --repo flag.
func RepoPath(cctx *cli.Context) (string, error) {
	return homedir.Expand(cctx.String("repo"))
}

// NewCabinetClient dials the daemon named by --listen, authenticating with
// --token or the token saved in the repo.
func NewCabinetClient(cctx *cli.Context) (api.CabinetAPI, jsonrpc.ClientCloser, error) {
	addr, err := DialArgs(cctx.String("listen"))
	if err != nil {
		return nil, nil, err
	}

	header := http.Header{}
	token := cctx.String("token")
	if token == "" {
		repo, err := RepoPath(cctx)
		if err != nil {
			return nil, nil, err
		}
		data, err := os.ReadFile(filepath.Join(repo, utils.TokenFile))
		if err != nil && !os.IsNotExist(err) {
			return nil, nil, err
		}
		token = strings.TrimSpace(string(data))
	}
	if token != "" {
		header.Add("Authorization", "Bearer "+token)
	}

	return api.NewCabinetRPCClient(cctx.Context, addr, header)
}

func DialArgs(addr string) (string, error) {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err == nil {
		_, addr, err := manet.DialArgs(ma)
		if err != nil {
			return "", err
		}

		return "ws://" + addr + "/rpc/v1", nil
	}

	_, err = url.Parse(addr)
	if err != nil {
		return "", err
	}
	return addr + "/rpc/v1", nil
}

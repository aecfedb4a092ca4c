package command

import (
	"github.com/urfave/cli/v2"

	"github.com/unknownsaying/meshsync/pkg/token"
)

// TokenCommand returns the token command. It mints a fresh admin
// token and prints both the secret and the hash that goes into the
// server's admin.token_hash setting.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Generate an admin API token",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "length",
				Usage: "token length in random bytes",
				Value: token.DefaultLength,
			},
		},
		Action: tokenAction,
	}
}

type tokenResult struct {
	Token string `json:"token"`
	Hash  string `json:"hash"`
}

func tokenAction(c *cli.Context) error {
	secret, err := token.GenerateWithLength(c.Int("length"))
	if err != nil {
		return err
	}
	return formatter(c).Format(c.App.Writer, tokenResult{
		Token: secret,
		Hash:  token.Hash(secret),
	})
}

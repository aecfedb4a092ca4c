package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/unknownsaying/meshsync/internal/cli/connection"
	"github.com/unknownsaying/meshsync/internal/client"
	"github.com/unknownsaying/meshsync/internal/core/domain"
)

// RPCCommand returns the rpc command.
func RPCCommand() *cli.Command {
	return &cli.Command{
		Name:      "rpc",
		Usage:     "Invoke a named procedure",
		ArgsUsage: "NAME [PARAMS]",
		Flags: []cli.Flag{
			&cli.UintFlag{
				Name:    "target",
				Aliases: []string{"t"},
				Usage:   "peer id to call, 0 for the server",
			},
			&cli.BoolFlag{
				Name:    "reliable",
				Aliases: []string{"r"},
				Usage:   "retransmit until acknowledged",
			},
		},
		Action: rpcAction,
	}
}

func rpcAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: rpc NAME [PARAMS]")
	}
	log, err := cliLogger(c)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
	defer cancel()

	sess, err := connection.Dial(ctx, c.String("server"), c.String("name"), client.Handlers{}, log, dialOpts(c)...)
	if err != nil {
		return err
	}
	defer sess.Close()

	var params []byte
	if c.NArg() > 1 {
		params = []byte(c.Args().Get(1))
	}
	err = sess.Client.Call(
		c.Args().First(),
		domain.PeerID(c.Uint("target")),
		c.Bool("reliable"),
		params,
		time.Now())
	if err != nil {
		return err
	}

	// Reliable calls stay until the server acks them.
	settle, settleCancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer settleCancel()
	sess.Pump(settle)
	return nil
}

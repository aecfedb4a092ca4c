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

// ChatCommand returns the chat subcommand group.
func ChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Use the chat channel",
		Subcommands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Send a chat line",
				ArgsUsage: "MESSAGE",
				Action:    chatSend,
			},
			{
				Name:  "listen",
				Usage: "Print chat messages as they arrive",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    "duration",
						Aliases: []string{"d"},
						Usage:   "how long to listen, 0 for forever",
					},
				},
				Action: chatListen,
			},
		},
	}
}

func chatSend(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: chat send MESSAGE")
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

	if err := sess.Client.Chat(c.Args().First(), time.Now()); err != nil {
		return err
	}
	// Give the datagram a moment to leave before the socket closes.
	settle, settleCancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer settleCancel()
	sess.Pump(settle)
	return nil
}

func chatListen(c *cli.Context) error {
	log, err := cliLogger(c)
	if err != nil {
		return err
	}
	handlers := client.Handlers{
		OnChat: func(sender domain.PeerID, text string) {
			fmt.Fprintf(c.App.Writer, "[peer %d] %s\n", sender, text)
		},
	}

	dialCtx, dialCancel := context.WithTimeout(c.Context, 10*time.Second)
	defer dialCancel()
	sess, err := connection.Dial(dialCtx, c.String("server"), c.String("name"), handlers, log, dialOpts(c)...)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := c.Context
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	sess.Pump(ctx)
	return nil
}

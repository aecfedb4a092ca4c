package command

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/unknownsaying/meshsync/internal/cli/connection"
	"github.com/unknownsaying/meshsync/internal/client"
)

// WatchCommand returns the watch command.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream interpolated entity states",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "duration",
				Aliases: []string{"d"},
				Usage:   "how long to watch",
				Value:   10 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "refresh",
				Usage: "print interval",
				Value: time.Second,
			},
		},
		Action: watchAction,
	}
}

type entityRow struct {
	Entity uint64
	Owner  uint32
	Type   uint8
	X      float32
	Y      float32
	Z      float32
	Stale  bool
}

func watchAction(c *cli.Context) error {
	log, err := cliLogger(c)
	if err != nil {
		return err
	}
	dialCtx, dialCancel := context.WithTimeout(c.Context, 10*time.Second)
	defer dialCancel()

	sess, err := connection.Dial(dialCtx, c.String("server"), c.String("name"), client.Handlers{}, log, dialOpts(c)...)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmtOut := formatter(c)
	buf := make([]byte, 2048)
	stop := time.Now().Add(c.Duration("duration"))
	next := time.Now().Add(c.Duration("refresh"))
	for time.Now().Before(stop) && sess.Client.Connected() {
		now := time.Now()
		if !sess.Client.Poll(buf, now) {
			sess.Client.Tick(now)
		}
		if !now.After(next) {
			continue
		}
		next = now.Add(c.Duration("refresh"))

		views := sess.Client.Views(now)
		rows := make([]entityRow, 0, len(views))
		for _, v := range views {
			rows = append(rows, entityRow{
				Entity: uint64(v.Entity),
				Owner:  uint32(v.Owner),
				Type:   uint8(v.Type),
				X:      v.Position.X,
				Y:      v.Position.Y,
				Z:      v.Position.Z,
				Stale:  v.Stale,
			})
		}
		if err := fmtOut.Format(c.App.Writer, rows); err != nil {
			return err
		}
	}
	return nil
}

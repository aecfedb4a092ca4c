package command

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/unknownsaying/meshsync/internal/cli/connection"
	"github.com/unknownsaying/meshsync/internal/client"
)

// PingCommand returns the ping command.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Measure round trip time to a server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "count",
				Aliases: []string{"c"},
				Usage:   "number of pings to send",
				Value:   4,
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "delay between pings",
				Value: time.Second,
			},
		},
		Action: pingAction,
	}
}

type pingResult struct {
	Seq int
	RTT time.Duration
}

func pingAction(c *cli.Context) error {
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

	count := c.Int("count")
	results := make([]pingResult, 0, count)
	buf := make([]byte, 2048)
	for i := 1; i <= count; i++ {
		prev := sess.Client.Pongs()
		if err := sess.Client.Ping(time.Now()); err != nil {
			return err
		}

		deadline := time.Now().Add(c.Duration("interval"))
		for time.Now().Before(deadline) && sess.Client.Pongs() == prev {
			sess.Client.Poll(buf, time.Now())
			sess.Client.Tick(time.Now())
		}
		if sess.Client.Pongs() > prev {
			results = append(results, pingResult{Seq: i, RTT: sess.Client.RTT()})
		} else {
			fmt.Fprintf(os.Stderr, "ping %d: timeout\n", i)
		}
	}

	if len(results) == 0 {
		return fmt.Errorf("no replies from %s", c.String("server"))
	}
	return formatter(c).Format(c.App.Writer, results)
}

package command

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
)

// StatusCommand returns the status command. It talks to the server's
// observability listener, not the game port.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Query a server's observability endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "obs",
				Usage:   "observability address",
				EnvVars: []string{"MESHSYNC_OBS"},
				Value:   "127.0.0.1:5851",
			},
		},
		Action: statusAction,
	}
}

type statusResult struct {
	Status   string `json:"status"`
	Peers    int    `json:"peers"`
	Entities int    `json:"entities"`
	Version  string `json:"version"`
	Commit   string `json:"commit"`
}

func statusAction(c *cli.Context) error {
	base := "http://" + c.String("obs")
	httpc := &http.Client{Timeout: 5 * time.Second}

	var res statusResult
	if err := getJSON(httpc, base+"/healthz", &res); err != nil {
		return err
	}
	var ver struct {
		Version string `json:"version"`
		Commit  string `json:"commit"`
	}
	if err := getJSON(httpc, base+"/version", &ver); err != nil {
		return err
	}
	res.Version = ver.Version
	res.Commit = ver.Commit

	return formatter(c).Format(c.App.Writer, res)
}

func getJSON(httpc *http.Client, url string, v any) error {
	resp, err := httpc.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

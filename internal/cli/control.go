package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"screenrec/internal/client"
	"screenrec/internal/events"
)

type call func(c *client.Client, ctx context.Context) (client.Response, error)

func newStartCmd(load loader) *cobra.Command {
	return newControlCmd(load, "start", "Start a recording", (*client.Client).Start)
}

func newStopCmd(load loader) *cobra.Command {
	return newControlCmd(load, "stop", "Stop the recording and merge its outputs", (*client.Client).Stop)
}

func newStatusCmd(load loader) *cobra.Command {
	return newControlCmd(load, "status", "Show the recorder status", (*client.Client).Status)
}

func newMergeCmd(load loader) *cobra.Command {
	return newControlCmd(load, "merge", "Retry the merge of the last unmerged recording", (*client.Client).Merge)
}

func newControlCmd(load loader, use string, short string, fn call) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dial(cmd, load)
			if err != nil {
				return err
			}
			resp, err := fn(c, cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().String("url", "", "Recorder base URL (default from server.host and server.port)")
	return cmd
}

func newPingCmd(load loader) *cobra.Command {
	var every time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Send a keep-alive, optionally repeating until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dial(cmd, load)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if _, err := c.KeepAlive(ctx); err != nil {
				return err
			}
			if every <= 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Ok")
				return err
			}

			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if _, err := c.KeepAlive(ctx); err != nil {
						if ctx.Err() != nil {
							return nil
						}
						return err
					}
				}
			}
		},
	}
	cmd.Flags().String("url", "", "Recorder base URL (default from server.host and server.port)")
	cmd.Flags().DurationVar(&every, "every", 0, "Repeat the keep-alive at this interval")
	return cmd
}

func newWatchCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream recorder events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dial(cmd, load)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return c.Watch(cmd.Context(), func(env events.Envelope) {
				fmt.Fprintf(out, "%s %s %s\n", time.Now().Format(time.RFC3339), env.Type, env.Payload)
			})
		},
	}
	cmd.Flags().String("url", "", "Recorder base URL (default from server.host and server.port)")
	return cmd
}

func dial(cmd *cobra.Command, load loader) (*client.Client, error) {
	cfg, err := load(cmd)
	if err != nil {
		return nil, err
	}
	base, _ := cmd.Flags().GetString("url")
	if base == "" {
		base = cfg.Addr()
	}
	return client.New(base, cfg.Server.AuthToken)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

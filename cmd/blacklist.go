package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/supplier-verify/internal/blacklist"
	"github.com/sells-group/supplier-verify/internal/model"
)

var blacklistCmd = &cobra.Command{
	Use:   "blacklist",
	Short: "Manage the local copy of the 69-B list",
}

var blacklistRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the published list and replace the stored set",
	Long: `Download the published 69-B list and replace the stored set.

The refresh is skipped when the list was already imported this month.
Use --force to import anyway, or --temporal to run it as a workflow on
the configured task queue instead of in this process.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		force, _ := cmd.Flags().GetBool("force")
		viaTemporal, _ := cmd.Flags().GetBool("temporal")

		var res *blacklist.RefreshResult
		if viaTemporal {
			c, err := dialTemporal()
			if err != nil {
				return err
			}
			defer c.Close()
			if res, err = blacklist.TriggerRefresh(ctx, c, cfg.Temporal.TaskQueue, force); err != nil {
				return err
			}
		} else {
			store, closeStore, err := openBlacklist(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			m, _ := newMetrics()
			if res, err = newRefresher(cfg, store, m).Run(ctx, force); err != nil {
				return eris.Wrap(err, "blacklist refresh")
			}
		}

		formatRefresh(os.Stdout, res)
		return nil
	},
}

var blacklistCheckCmd = &cobra.Command{
	Use:   "check RFC",
	Short: "Report whether an RFC is in the stored set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rfc := model.NormalizeRFC(args[0])
		if !model.ValidRFC(rfc) {
			return eris.Errorf("blacklist check: %q is not a valid RFC", args[0])
		}

		store, closeStore, err := openBlacklist(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		listed, err := store.Contains(ctx, rfc)
		if err != nil {
			return eris.Wrap(err, "blacklist check")
		}
		if listed {
			fmt.Printf("%s is LISTED\n", rfc)
		} else {
			fmt.Printf("%s is not listed\n", rfc)
		}
		return nil
	},
}

var blacklistStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last import of the stored set",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, closeStore, err := openBlacklist(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		last, err := store.LastImport(ctx)
		if err != nil {
			return eris.Wrap(err, "blacklist status")
		}
		if last == nil {
			zap.L().Info("no import found, run 'blacklist refresh' to load the list")
			return nil
		}
		count, err := store.Count(ctx)
		if err != nil {
			return eris.Wrap(err, "blacklist status")
		}
		formatImport(os.Stdout, last, count, time.Now())
		return nil
	},
}

func init() {
	blacklistRefreshCmd.Flags().Bool("force", false, "import even if the list was already imported this month")
	blacklistRefreshCmd.Flags().Bool("temporal", false, "run the refresh as a workflow")
	blacklistCmd.AddCommand(blacklistRefreshCmd, blacklistCheckCmd, blacklistStatusCmd)
	rootCmd.AddCommand(blacklistCmd)
}

func dialTemporal() (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "temporal: dial %s", cfg.Temporal.HostPort)
	}
	return c, nil
}

// formatRefresh writes the outcome of a refresh run to out.
func formatRefresh(out io.Writer, res *blacklist.RefreshResult) {
	if res.Skipped {
		at := "-"
		if res.Previous != nil {
			at = res.Previous.At.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(out, "Skipped: already imported this month (%s)\n", at)
		return
	}
	if res.Import == nil {
		_, _ = fmt.Fprintln(out, "Refresh complete")
		return
	}
	_, _ = fmt.Fprintf(out, "Imported %d RFCs (version %d) from %s\n",
		res.Import.TotalCount, res.Import.Version, res.Import.SourceURL)
}

// formatImport writes a table describing the current import to out.
func formatImport(out io.Writer, rec *model.ImportRecord, count int, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tIMPORTED\tAGE\tVERSION\tMODE\tROWS\tSOURCE")
	_, _ = fmt.Fprintln(w, "--\t--------\t---\t-------\t----\t----\t------")
	age := now.Sub(rec.At).Round(time.Hour)
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
		rec.ID, rec.At.UTC().Format(time.RFC3339), age, rec.Version, rec.Mode, count, rec.SourceURL)
	_ = w.Flush()
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nuulab/jobflow/pkg/flowfile"
	"github.com/nuulab/jobflow/pkg/manager"
	"github.com/nuulab/jobflow/pkg/store"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <flow-file>",
	Short: "Execute a flow definition file to completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading flow file: %w", err)
		}

		f, err := flowfile.Parse(raw)
		if err != nil {
			return fmt.Errorf("parsing flow file: %w", err)
		}

		backing := openStore(cfg)
		ctx := context.Background()
		if err := backing.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to store: %w", err)
		}
		defer backing.Close(ctx)

		mgr := manager.New(store.NewJobStoreAdapter(backing))

		info(fmt.Sprintf("running flow %q", f.Name()))
		runCtx := ctx
		if cfg.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
			defer cancel()
		}
		results, runErr := mgr.Run(runCtx, f)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "UUID\tITERATION\tOUTPUT")
		fmt.Fprintln(w, "----\t---------\t------")
		for id, iterations := range results {
			for iter, r := range iterations {
				encoded, _ := json.Marshal(r.Output)
				fmt.Fprintf(w, "%s\t%d\t%s\n", cyan(id.String()), iter, string(encoded))
			}
		}
		w.Flush()

		if runErr != nil {
			failures := mgr.Failures().Entries()
			for _, e := range failures {
				fail(fmt.Sprintf("job %s (%s) failed: %s", e.Name, e.UUID, e.Err))
			}
			return fmt.Errorf("flow run stopped early: %w", runErr)
		}

		success(fmt.Sprintf("flow %q completed (%d job outputs)", f.Name(), len(results)))
		return nil
	},
}

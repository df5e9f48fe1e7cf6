package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nuulab/jobflow/pkg/store"
)

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeInspectCmd)
	storeInspectCmd.Flags().IntP("limit", "n", 20, "max documents to show")
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the configured document store",
}

var storeInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List output documents held by the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg := loadConfig()
		backing := openStore(cfg)
		ctx := context.Background()
		if err := backing.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to store: %w", err)
		}
		defer backing.Close(ctx)

		docs, err := backing.Query(ctx, store.Query{}, store.ByIndexDescending, limit, store.OutputsCollection)
		if err != nil {
			return fmt.Errorf("querying store: %w", err)
		}

		fmt.Println(bold(fmt.Sprintf("Store backend: %s", cfg.StoreBackend)))
		fmt.Println()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "UUID\tNAME\tITERATION\tCOMPLETED")
		fmt.Fprintln(w, "----\t----\t---------\t---------")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", cyan(d.UUID.String()), d.Name, d.Index, d.CompletedAt.Format("15:04:05"))
		}
		w.Flush()
		return nil
	},
}

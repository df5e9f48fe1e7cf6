package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nuulab/jobflow/pkg/store"
)

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobStatusCmd)
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect jobs against the configured store",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <uuid>",
	Short: "Print the latest stored output for a job uuid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid uuid %q: %w", args[0], err)
		}

		cfg := loadConfig()
		backing := openStore(cfg)
		ctx := context.Background()
		if err := backing.Connect(ctx); err != nil {
			return fmt.Errorf("connecting to store: %w", err)
		}
		defer backing.Close(ctx)

		doc, found, err := backing.GetOne(ctx, store.ForUUID(id), store.OutputsCollection)
		if err != nil {
			return fmt.Errorf("querying store: %w", err)
		}
		if !found {
			warn(fmt.Sprintf("no output found for %s", id))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "UUID:\t%s\n", cyan(doc.UUID.String()))
		fmt.Fprintf(w, "Name:\t%s\n", doc.Name)
		fmt.Fprintf(w, "Iteration:\t%d\n", doc.Index)
		fmt.Fprintf(w, "Completed At:\t%s\n", doc.CompletedAt.Format("2006-01-02T15:04:05Z07:00"))
		w.Flush()

		encoded, _ := json.MarshalIndent(doc.Output, "", "  ")
		fmt.Println()
		fmt.Println(bold("Output:"))
		fmt.Println(string(encoded))
		return nil
	},
}

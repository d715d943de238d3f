package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/pkg/rag"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := rag.NewService(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		docs := svc.Documents()
		if len(docs) == 0 {
			fmt.Println("no documents")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFILENAME\tTYPE\tCHUNKS\tCREATED")
		for _, d := range docs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				d.ID, d.Filename, d.FileType, d.TotalChunks, d.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

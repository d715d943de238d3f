package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/pkg/rag"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete an ingested document and its index entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := rag.NewService(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.DeleteDocument(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/log"
	"github.com/ragstack/ragserve/pkg/rag"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest files into the index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetDebug(verbose)

		svc, err := rag.NewService(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		files := make([]domain.FileData, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			files = append(files, domain.FileData{Name: filepath.Base(path), Data: data})
		}

		outcomes, err := svc.Ingest(cmd.Context(), files)
		if err != nil {
			return err
		}

		failed := 0
		for _, out := range outcomes {
			switch {
			case out.Error != "":
				failed++
				fmt.Printf("FAIL  %s: %s\n", out.Filename, out.Error)
			case out.Deduped:
				fmt.Printf("SKIP  %s: already ingested as %s\n", out.Filename, out.Document.ID)
			default:
				fmt.Printf("OK    %s: %s (%d chunks)\n", out.Filename, out.Document.ID, out.Document.TotalChunks)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(outcomes))
		}
		return nil
	},
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragstack/ragserve/pkg/domain"
	"github.com/ragstack/ragserve/pkg/log"
	"github.com/ragstack/ragserve/pkg/rag"
)

var (
	queryTopK      int
	queryThreshold float64
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question or search for a literal string",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetDebug(verbose)

		svc, err := rag.NewService(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		out, err := svc.Handle(cmd.Context(), domain.QueryRequest{
			Question:            strings.Join(args, " "),
			TopK:                queryTopK,
			SimilarityThreshold: queryThreshold,
		})
		if err != nil {
			return err
		}

		if out.Type == rag.QueryStringSearch {
			if len(out.Matches) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for _, m := range out.Matches {
				fmt.Printf("%s @%d: %s\n", m.Filename, m.Offset, m.Snippet)
			}
			return nil
		}

		fmt.Println(out.Response.Answer)
		if len(out.Response.Citations) > 0 {
			fmt.Println("\nCitations:")
			for _, cit := range out.Response.Citations {
				switch {
				case cit.Page > 0:
					fmt.Printf("  %s, Page %d (%.2f)\n", cit.Filename, cit.Page, cit.Score)
				case cit.LineStart > 0:
					fmt.Printf("  %s, Lines %d-%d (%.2f)\n", cit.Filename, cit.LineStart, cit.LineEnd, cit.Score)
				default:
					fmt.Printf("  %s (%.2f)\n", cit.Filename, cit.Score)
				}
			}
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "number of chunks to retrieve (default from config)")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0, "minimum similarity (default 0.20)")
}

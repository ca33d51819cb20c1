package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/righthand-talent/placement-cli/internal/model"
)

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Inspect candidates in the pipeline",
}

// -- candidates list --

var candidatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List candidates and their pipeline status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		candidates, err := st.ListCandidates(ctx)
		if err != nil {
			return eris.Wrap(err, "candidates list")
		}

		status, _ := cmd.Flags().GetString("status")
		if status != "" {
			filtered := candidates[:0]
			for _, c := range candidates {
				if c.ProcessingStatus == model.Status(status) {
					filtered = append(filtered, c)
				}
			}
			candidates = filtered
		}

		if len(candidates) == 0 {
			fmt.Fprintln(os.Stderr, "No candidates found.")
			return nil
		}

		formatCandidatesList(os.Stdout, candidates)
		return nil
	},
}

// -- candidates show --

var candidatesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a candidate as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return eris.Errorf("invalid candidate id %q", args[0])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		candidate, err := st.GetCandidate(ctx, id)
		if err != nil {
			return eris.Wrap(err, "candidates show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(candidate)
	},
}

func formatCandidatesList(out io.Writer, candidates []model.Candidate) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tSTATUS\tUPDATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t----\t------\t-------")

	for _, c := range candidates {
		name := c.FirstName + " " + c.LastName
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			c.ID,
			name,
			c.Email,
			c.Role,
			c.ProcessingStatus,
			c.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func init() {
	candidatesListCmd.Flags().String("status", "", "filter by processing status")
	candidatesCmd.AddCommand(candidatesListCmd)
	candidatesCmd.AddCommand(candidatesShowCmd)
	rootCmd.AddCommand(candidatesCmd)
}

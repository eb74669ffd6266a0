package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/theimaginaryfoundation/casebook/extraction"
	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
)

func newInspectCmd(a *app) *cobra.Command {
	cfg := defaultInspectConfig()
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the CJK texts, slot bindings and assembled record of one row",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg.normalize()
			if err := cfg.Validate(); err != nil {
				return usageError{err: err}
			}

			rows, err := extraction.LoadRows(cmd.Context(), cfg.InputPath, cfg.rowOptions())
			if err != nil {
				return err
			}
			row, ok := pickRow(rows, cfg)
			if !ok {
				if cfg.CaseID != "" {
					return fmt.Errorf("case %q not found in %s", cfg.CaseID, cfg.InputPath)
				}
				return fmt.Errorf("row %d out of range (%d rows)", cfg.Row, len(rows))
			}
			return writeInspection(a.stdout, a.assembler(), row)
		},
	}
	bindInspectFlags(cmd.Flags(), &cfg)
	return cmd
}

func pickRow(rows []extraction.Row, cfg InspectConfig) (extraction.Row, bool) {
	if cfg.CaseID != "" {
		for _, r := range rows {
			if r.CaseID == cfg.CaseID {
				return r, true
			}
		}
		return extraction.Row{}, false
	}
	if cfg.Row < 1 || cfg.Row > len(rows) {
		return extraction.Row{}, false
	}
	return rows[cfg.Row-1], true
}

func writeInspection(w io.Writer, asm *extraction.Assembler, row extraction.Row) error {
	caseID := row.CaseID
	if caseID == "" {
		caseID = fmt.Sprintf("row-%d", row.Index+1)
	}
	fmt.Fprintf(w, "case %s (row %d)\n", caseID, row.Index+1)

	fmt.Fprintln(w, "\ncontent texts:")
	for _, pt := range extraction.ExtractCJKTexts(row.Content) {
		fmt.Fprintf(w, "  %s: %s\n", pt.Path, fileutils.Truncate(fileutils.SanitizeNewlines(pt.Text), 80))
	}

	fmt.Fprintln(w, "\nslot bindings:")
	if g, err := extraction.ParseParams(row.Params); err != nil {
		fmt.Fprintf(w, "  (%v)\n", err)
	} else {
		for _, b := range extraction.SlotBindings(g) {
			slot := b.Slot
			if slot == "" {
				slot = "-"
			}
			fmt.Fprintf(w, "  %s -> %s [%s] out=%s val=%s\n", b.InName, slot, b.Kind, orNone(b.OutName), b.Val)
		}
	}

	rec, diag := asm.Assemble(caseID, row.Content, row.Params)
	if err := diag.Err(); err != nil {
		fmt.Fprintf(w, "\ndiagnostics: %v\n", err)
	}
	b, err := fileutils.MarshalJSON(rec, true)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	fmt.Fprintf(w, "\nrecord:\n%s\n", b)
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

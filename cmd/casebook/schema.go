package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/theimaginaryfoundation/casebook/extraction"
	"github.com/theimaginaryfoundation/casebook/extraction/fileutils"
	"github.com/theimaginaryfoundation/casebook/extraction/schema"
)

func newSchemaCmd(a *app) *cobra.Command {
	var cfg SchemaConfig
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of a case record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := schema.Generate[extraction.CaseRecord]()
			if err != nil {
				return fmt.Errorf("generate schema: %w", err)
			}
			b, err := fileutils.MarshalJSON(s, true)
			if err != nil {
				return fmt.Errorf("marshal schema: %w", err)
			}
			if cfg.OutPath == "" {
				_, err := fmt.Fprintf(a.stdout, "%s\n", b)
				return err
			}
			if err := fileutils.CheckWritable(cfg.OutPath, cfg.Overwrite); err != nil {
				return err
			}
			if err := fileutils.WriteFileAtomic(cfg.OutPath, b, 0o644, true); err != nil {
				return err
			}
			a.log.Info("schema written", "path", cfg.OutPath)
			return nil
		},
	}
	bindSchemaFlags(cmd.Flags(), &cfg)
	return cmd
}

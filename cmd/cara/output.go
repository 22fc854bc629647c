package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cara/internal/fileutil"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSON decodes path into v; "-" reads stdin.
func readJSON(cmd *cobra.Command, path string, v any) error {
	if path == "-" {
		if err := json.NewDecoder(cmd.InOrStdin()).Decode(v); err != nil {
			return fmt.Errorf("decode stdin: %w", err)
		}
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeText writes s to path, or to stdout when path is empty.
func writeText(cmd *cobra.Command, path, s string) error {
	if path == "" {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), s)
		return err
	}
	if err := fileutil.WriteFileAtomic(path, []byte(s+"\n"), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}

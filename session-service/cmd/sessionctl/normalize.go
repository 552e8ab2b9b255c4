package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mestrai-server/session-service/internal/rules"
)

// intakeSheet - анкета в том виде, в каком ее присылает клиент.
type intakeSheet struct {
	Attributes map[string]any `json:"attributes"`
	Inventory  []any          `json:"inventory"`
}

func newNormalizeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize a character sheet (JSON from --file or stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var sheet intakeSheet
			if err := json.NewDecoder(in).Decode(&sheet); err != nil {
				return fmt.Errorf("decode sheet: %w", err)
			}
			state := rules.NewCharacterState(
				rules.NormalizeRawAttributes(sheet.Attributes),
				rules.NormalizeInventory(sheet.Inventory),
			)
			return printJSON(cmd, state)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Sheet file (default: stdin)")
	return cmd
}

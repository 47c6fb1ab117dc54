package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"cirrus/pkg/execution"
	"cirrus/pkg/plan"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	Command.AddCommand(&cobra.Command{
		Use:   "inspect [file]",
		Short: "print a marshaled execution context.",
		Long:  `decode a cloud environment read from file, or stdin when no file is given, and print its plan.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.WithMessage(err, "can't open context file")
				}
				defer f.Close()
				in = f
			}
			b, err := io.ReadAll(in)
			if err != nil {
				return err
			}
			ec, err := execution.Unmarshal(strings.TrimSpace(string(b)))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:       %s\n", ec.Name)
			fmt.Fprintf(out, "next:       %s\n", ec.Next)
			fmt.Fprintf(out, "datasource: %s\n", ec.DataSource)
			fmt.Fprintf(out, "plan:\n%s\n", plan.String(ec.Plan))
			return nil
		},
	})
}

package main

import (
	"fmt"
	"sort"

	"cirrus/cirrus"
	"cirrus/lib/component"
	"cirrus/lib/properties"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	Command.AddCommand(&cobra.Command{
		Use:       "inventory <source|sink>",
		Short:     "list cirrus sources and sinks.",
		Long:      `list cirrus sources and sinks with their properties.`,
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"source", "sink"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var defs map[string]cirrus.PropertiesDef
			switch args[0] {
			case "source":
				defs = component.ListSourceDef()
			case "sink":
				defs = component.ListSinkDef()
			default:
				return errors.Errorf("unknown inventory type %q", args[0])
			}

			names := make([]string, 0, len(defs))
			for name := range defs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s:\n%s\n", name, args[0], properties.RenderDef(defs[name]))
			}
			return nil
		}})
}

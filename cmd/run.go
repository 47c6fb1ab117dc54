package main

import (
	_c "context"
	"path"
	"strings"

	"cirrus/lib/runtime"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	Command.AddCommand(&cobra.Command{
		Use:   "run <config>",
		Short: "run functions",
		Long:  `config sources, functions and sinks, run them until a signal arrives`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configFilePath := args[0]
			ext := path.Ext(configFilePath)
			if ext == "" {
				return errors.Errorf("config file %s has no extension", configFilePath)
			}
			r, err := runtime.New(_c.Background(), strings.TrimSuffix(path.Base(configFilePath), ext), ext[1:], path.Dir(configFilePath))
			if err != nil {
				return err
			}
			return r.Run()
		},
	})
}

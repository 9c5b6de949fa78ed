package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty key store",
		Long:  "Create the key store file with an empty document if it does not exist yet. An existing store is left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			created, err := a.store.CreateIfAbsent(a.ctx())
			if err != nil {
				return explain(err)
			}
			if !created {
				n, err := a.keys.Count(a.ctx())
				if err != nil {
					return explain(err)
				}
				fmt.Printf("Key store %s already exists (%d keys)\n", a.store.Path(), n)
				return nil
			}
			fmt.Printf("Created key store %s\n", a.store.Path())
			return nil
		},
	}
}

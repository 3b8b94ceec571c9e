package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Beatrizpaiva2025/Mia-Welcome/internal/auth"
)

func main() {
	root := &cobra.Command{
		Use:   "mia",
		Short: "Multi-channel conversational assistant for Legacy Translations",
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the gateway server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "hash-password <password>",
		Short: "Hash an admin password for config.toml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Println(hash)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

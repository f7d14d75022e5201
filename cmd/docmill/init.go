package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docmill/docmill/internal/config"
	"github.com/docmill/docmill/internal/home"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the docmill home directory and default config",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		if h.ConfigExists() {
			fmt.Printf("config already exists at %s\n", h.ConfigPath())
			return nil
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("wrote default config to %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

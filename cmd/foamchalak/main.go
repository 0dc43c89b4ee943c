package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "foamchalak",
		Short: "FoamChalak - Browser-driven OpenFOAM run orchestrator",
		Long: `FoamChalak runs the OpenFOAM toolchain (mesh generation, mesh check,
solve) as a supervised pipeline, locally or inside a Docker container.
It serves a browser control surface with live output streaming and keeps
a durable log of every run.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "schoolctl",
	Short: "Terminal client for the SchoolHub backend",
	Long: `schoolctl talks to a SchoolHub server.

  chat    ask the AI assistant, with answers streamed as they are written
  import  upload a class roster (.csv or .xlsx) and follow the import live
  token   mint a development access token`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

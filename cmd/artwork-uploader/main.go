package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

var configPath string

// errRunFailed makes the process exit non-zero after a run with failures.
var errRunFailed = errors.New("one or more uploads failed")

var rootCmd = &cobra.Command{
	Use:           "artwork-uploader",
	Short:         "Upload artwork files to stock agency FTP servers",
	Long:          "artwork-uploader sends images and their vector originals to every configured FTP destination in parallel, retrying failed transfers.",
	Version:       fmt.Sprintf("%s (%s)", Version, GitSHA),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration (default uploader.yaml)")
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.AddCommand(uploadCmd, checkCmd, historyCmd)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

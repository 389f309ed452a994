package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/withObsrvr/artwork-uploader/internal/secrets"
	"github.com/withObsrvr/artwork-uploader/internal/upload"
)

var checkTo []string

var checkCmd = &cobra.Command{
	Use:   "check [flags]",
	Short: "Verify that each destination accepts its credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		destinations, err := cfg.SelectedDestinations(checkTo)
		if err != nil {
			return err
		}
		layouts, err := cfg.LayoutTable()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		decoder := secrets.NewDecoder()
		decoder.Strict = cfg.Upload.StrictSecrets
		dialer := upload.NewFTPDialer()
		settings := cfg.Settings()

		failed := 0
		for _, d := range destinations {
			password, err := decoder.Decode(d.EncodedPassword)
			if err == nil {
				uc := upload.NewUploadContext(d, password, settings, layouts)
				err = upload.CheckContext(ctx, dialer, uc)
			}

			if err != nil {
				failed++
				fmt.Fprintf(os.Stdout, "FAIL  %-20s %s: %v\n", d.Title, d.Host, err)
				continue
			}
			fmt.Fprintf(os.Stdout, "OK    %-20s %s\n", d.Title, d.Host)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d destinations failed the check", failed, len(destinations))
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().StringSliceVar(&checkTo, "to", nil, "destination titles to check (default all)")
}

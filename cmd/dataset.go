package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/dataset"
	"github.com/marcuswonder/marketoffer-services-sub000/pkg/landregistry"
)

var datasetSourceURL string

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage the corporate-ownership dataset",
}

var datasetRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Download the ownership dataset and replace the cached copy",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if datasetSourceURL != "" {
			cfg.Dataset.SourceURL = datasetSourceURL
		}
		return cfg.Validate("dataset")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		land := landregistry.NewClient(cfg.LandRegistry.BaseURL)
		refresher := dataset.NewRefresher(land, st, dataset.NewCache(st))

		rows, err := refresher.Refresh(ctx, cfg.Dataset.Label, cfg.Dataset.SourceURL)
		if err != nil {
			return eris.Wrap(err, "refresh dataset")
		}

		zap.L().Info("dataset refreshed",
			zap.String("dataset", cfg.Dataset.Label),
			zap.Int("rows", rows))
		return nil
	},
}

var datasetStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the loaded dataset's row count and refresh time",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Validate("migrate")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		meta, err := st.GetDatasetMeta(ctx, cfg.Dataset.Label)
		if err != nil {
			return eris.Wrapf(err, "dataset %s not loaded", cfg.Dataset.Label)
		}
		return printJSON(meta)
	},
}

func init() {
	datasetRefreshCmd.Flags().StringVar(&datasetSourceURL, "source-url", "", "dataset CSV location (http, https, or ftp; default from config)")
	datasetCmd.AddCommand(datasetRefreshCmd)
	datasetCmd.AddCommand(datasetStatusCmd)
	rootCmd.AddCommand(datasetCmd)
}

package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/export"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
	notionpkg "github.com/marcuswonder/marketoffer-services-sub000/pkg/notion"
)

var (
	exportStatus string
	exportTo     []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Push finished resolutions to the configured lead sinks",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Validate("export")
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		filter := store.ResolutionFilter{}
		if exportStatus != "" {
			filter.Status = model.ResolutionStatus(exportStatus)
		}

		leads, err := export.BuildLeads(ctx, st, filter)
		if err != nil {
			return eris.Wrap(err, "build leads")
		}
		if len(leads) == 0 {
			zap.L().Info("nothing to export")
			return nil
		}

		for _, target := range exportTo {
			sink, err := initSink(target)
			if err != nil {
				return err
			}
			if err := sink.Push(ctx, leads); err != nil {
				return eris.Wrapf(err, "push to %s", target)
			}
		}
		return nil
	},
}

func initSink(target string) (export.Sink, error) {
	switch target {
	case "xlsx":
		return &export.XLSXSink{Dir: cfg.Export.XLSXDir}, nil
	case "notion":
		if cfg.Export.Notion.Token == "" || cfg.Export.Notion.LeadDB == "" {
			return nil, eris.New("export.notion.token and export.notion.lead_db are required")
		}
		return &export.NotionSink{
			Client: notionpkg.NewClient(cfg.Export.Notion.Token),
			DBID:   cfg.Export.Notion.LeadDB,
		}, nil
	case "salesforce":
		sfClient, err := initSalesforce()
		if err != nil {
			return nil, err
		}
		return &export.SalesforceSink{Client: sfClient}, nil
	default:
		return nil, eris.Errorf("unknown export target: %s", target)
	}
}

func init() {
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "only export resolutions with this status")
	exportCmd.Flags().StringSliceVar(&exportTo, "to", []string{"xlsx"}, "sinks to push to: xlsx, notion, salesforce")
	rootCmd.AddCommand(exportCmd)
}

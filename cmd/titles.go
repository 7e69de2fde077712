package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/titles"
)

var (
	titlesEasting  float64
	titlesNorthing float64
)

var titlesCmd = &cobra.Command{
	Use:   "titles",
	Short: "Look up the INSPIRE title polygon covering a point",
	Long:  "Loads the configured INSPIRE index polygon shapefile and reports which registered title covers the given easting/northing. Useful for needs_title_register outcomes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Titles.ShapefilePath == "" {
			return eris.New("titles.shapefile_path is required")
		}

		idx, err := titles.LoadShapefile(cfg.Titles.ShapefilePath)
		if err != nil {
			return err
		}

		id, ok := idx.FindTitle(titlesEasting, titlesNorthing)
		if !ok {
			zap.L().Info("no title polygon covers the point",
				zap.Float64("easting", titlesEasting),
				zap.Float64("northing", titlesNorthing))
			return printJSON(map[string]any{"found": false})
		}

		return printJSON(map[string]any{"found": true, "inspire_id": id})
	},
}

func init() {
	titlesCmd.Flags().Float64Var(&titlesEasting, "easting", 0, "OSGB easting of the property")
	titlesCmd.Flags().Float64Var(&titlesNorthing, "northing", 0, "OSGB northing of the property")
	_ = titlesCmd.MarkFlagRequired("easting")
	_ = titlesCmd.MarkFlagRequired("northing")
	rootCmd.AddCommand(titlesCmd)
}

package export

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// XLSXSink writes leads to a timestamped workbook under Dir.
type XLSXSink struct {
	Dir string
}

var xlsxHeader = []string{
	"Resolution ID", "Address", "Postcode", "Status", "Owner Type",
	"Owner Name", "Company Number", "Score", "Title Hint", "Notes",
}

func (s *XLSXSink) Push(ctx context.Context, leads []Lead) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "export: xlsx cancelled")
	}

	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Leads")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range xlsxHeader {
		header.AddCell().Value = h
	}

	for _, lead := range leads {
		row := sheet.AddRow()
		row.AddCell().Value = lead.ResolutionID
		row.AddCell().Value = lead.Address
		row.AddCell().Value = lead.Postcode
		row.AddCell().Value = lead.Status
		row.AddCell().Value = lead.OwnerType
		row.AddCell().Value = lead.OwnerName
		row.AddCell().Value = lead.CompanyNo
		if lead.Score > 0 {
			row.AddCell().SetFloatWithFormat(lead.Score, "0.00")
		} else {
			row.AddCell()
		}
		row.AddCell().Value = lead.TitleHint
		row.AddCell().Value = lead.Notes
	}

	path := filepath.Join(s.Dir, "leads-"+time.Now().Format("2006-01-02-150405")+".xlsx")
	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}

	zap.L().Info("xlsx written", zap.String("path", path), zap.Int("leads", len(leads)))
	return nil
}

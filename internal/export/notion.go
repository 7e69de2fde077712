package export

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/marcuswonder/marketoffer-services-sub000/pkg/notion"
)

// NotionSink upserts leads into a Notion database, keyed on the resolution
// id so re-running an export updates pages instead of duplicating them.
type NotionSink struct {
	Client notion.Client
	DBID   string
}

func (s *NotionSink) Push(ctx context.Context, leads []Lead) error {
	created, updated := 0, 0
	for _, lead := range leads {
		existing, err := notion.QueryPagesByResolution(ctx, s.Client, s.DBID, lead.ResolutionID)
		if err != nil {
			return eris.Wrapf(err, "export: look up lead %s", lead.ResolutionID)
		}

		props := leadProperties(lead)
		if len(existing) > 0 {
			_, err = s.Client.UpdatePage(ctx, string(existing[0].ID), &notionapi.PageUpdateRequest{
				Properties: props,
			})
			if err != nil {
				return eris.Wrapf(err, "export: update lead %s", lead.ResolutionID)
			}
			updated++
			continue
		}

		_, err = s.Client.CreatePage(ctx, &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(s.DBID),
			},
			Properties: props,
		})
		if err != nil {
			return eris.Wrapf(err, "export: create lead %s", lead.ResolutionID)
		}
		created++
	}

	zap.L().Info("notion leads pushed", zap.Int("created", created), zap.Int("updated", updated))
	return nil
}

func leadProperties(lead Lead) notionapi.Properties {
	props := notionapi.Properties{
		"Address": notionapi.TitleProperty{
			Type:  notionapi.PropertyTypeTitle,
			Title: richText(lead.Address),
		},
		"Resolution ID": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(lead.ResolutionID),
		},
		"Status": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: lead.Status},
		},
		"Owner Type": notionapi.SelectProperty{
			Type:   notionapi.PropertyTypeSelect,
			Select: notionapi.Option{Name: lead.OwnerType},
		},
		"Owner Name": notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(lead.ownerLabel()),
		},
	}
	if lead.Postcode != "" {
		props["Postcode"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(lead.Postcode),
		}
	}
	if lead.CompanyNo != "" {
		props["Company Number"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(lead.CompanyNo),
		}
	}
	if lead.Score > 0 {
		props["Score"] = notionapi.NumberProperty{
			Type:   notionapi.PropertyTypeNumber,
			Number: lead.Score,
		}
	}
	if lead.Notes != "" {
		props["Notes"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: richText(lead.Notes),
		}
	}
	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}

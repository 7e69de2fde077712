package export

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/marcuswonder/marketoffer-services-sub000/internal/model"
	"github.com/marcuswonder/marketoffer-services-sub000/internal/store"
	sfpkg "github.com/marcuswonder/marketoffer-services-sub000/pkg/salesforce"
)

func seedResolutions(t *testing.T) store.Store {
	t.Helper()
	s := store.NewMemory()
	ctx := context.Background()

	corporate := &model.PropertyResolution{
		ID:           "res-corp",
		InputAddress: "Unit 3, 12 Dock Road, E14 9GE",
		Address:      model.NormalizedAddress{SAON: "3", PAON: "12", Street: "Dock Road", Town: "London", Postcode: "E14 9GE"},
		Status:       model.ResolutionRunning,
		OwnerType:    model.OwnerUnknown,
	}
	require.NoError(t, s.CreateResolution(ctx, corporate))
	require.NoError(t, s.SetResolutionResult(ctx, "res-corp",
		model.ResolutionCorporate, model.OwnerCorporate,
		&model.ResolutionResult{
			Corporate: &model.CorporateOwner{OwnerName: "DOCKSIDE HOLDINGS LTD", CompanyNumber: "09876543"},
			TitleHint: "TGL44421",
		}))

	resolved := &model.PropertyResolution{
		ID:           "res-ind",
		InputAddress: "9 Waterfront Mews, E1 4GJ",
		Address:      model.NormalizedAddress{PAON: "9", Street: "Waterfront Mews", Town: "London", Postcode: "E1 4GJ"},
		Status:       model.ResolutionRunning,
		OwnerType:    model.OwnerUnknown,
	}
	require.NoError(t, s.CreateResolution(ctx, resolved))
	require.NoError(t, s.SetResolutionResult(ctx, "res-ind",
		model.ResolutionResolved, model.OwnerIndividual,
		&model.ResolutionResult{BestName: "Jane Smith", BestScore: 5.2}))

	empty := &model.PropertyResolution{
		ID:           "res-empty",
		InputAddress: "1 Nowhere Lane, ZZ9 9ZZ",
		Address:      model.NormalizedAddress{PAON: "1", Street: "Nowhere Lane", Postcode: "ZZ9 9ZZ"},
		Status:       model.ResolutionRunning,
		OwnerType:    model.OwnerUnknown,
	}
	require.NoError(t, s.CreateResolution(ctx, empty))
	require.NoError(t, s.SetResolutionResult(ctx, "res-empty",
		model.ResolutionNoPublicData, model.OwnerUnknown, nil))

	running := &model.PropertyResolution{
		ID:           "res-running",
		InputAddress: "2 Midway Street, N1 7AA",
		Address:      model.NormalizedAddress{PAON: "2", Street: "Midway Street", Postcode: "N1 7AA"},
		Status:       model.ResolutionRunning,
		OwnerType:    model.OwnerUnknown,
	}
	require.NoError(t, s.CreateResolution(ctx, running))

	return s
}

func TestBuildLeads_SkipsUnexportable(t *testing.T) {
	s := seedResolutions(t)

	leads, err := BuildLeads(context.Background(), s, store.ResolutionFilter{})
	require.NoError(t, err)
	require.Len(t, leads, 2)

	byID := make(map[string]Lead, len(leads))
	for _, l := range leads {
		byID[l.ResolutionID] = l
	}

	corp := byID["res-corp"]
	assert.Equal(t, "Flat 3, 12 Dock Road, London, E14 9GE", corp.Address)
	assert.Equal(t, "corporate", corp.Status)
	assert.Equal(t, "DOCKSIDE HOLDINGS LTD", corp.OwnerName)
	assert.Equal(t, "09876543", corp.CompanyNo)
	assert.Equal(t, "TGL44421", corp.TitleHint)
	assert.Zero(t, corp.Score)

	ind := byID["res-ind"]
	assert.Equal(t, "Jane Smith", ind.OwnerName)
	assert.InDelta(t, 5.2, ind.Score, 0.001)
	assert.Empty(t, ind.CompanyNo)
}

func TestBuildLeads_StatusFilter(t *testing.T) {
	s := seedResolutions(t)

	leads, err := BuildLeads(context.Background(), s, store.ResolutionFilter{
		Status: model.ResolutionResolved,
	})
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "res-ind", leads[0].ResolutionID)
}

func TestXLSXSink_Push(t *testing.T) {
	dir := t.TempDir()
	sink := &XLSXSink{Dir: dir}

	leads := []Lead{
		{
			ResolutionID: "res-1",
			Address:      "9 Waterfront Mews, London, E1 4GJ",
			Postcode:     "E1 4GJ",
			Status:       "resolved",
			OwnerType:    "individual",
			OwnerName:    "Jane Smith",
			Score:        5.2,
		},
		{
			ResolutionID: "res-2",
			Address:      "12 Dock Road, London, E14 9GE",
			Postcode:     "E14 9GE",
			Status:       "corporate",
			OwnerType:    "corporate",
			OwnerName:    "DOCKSIDE HOLDINGS LTD",
			CompanyNo:    "09876543",
		},
	}
	require.NoError(t, sink.Push(context.Background(), leads))

	sheets, err := xlsx.FileToSlice(firstXLSX(t, dir))
	require.NoError(t, err)
	require.NotEmpty(t, sheets)

	sheet := sheets[0]
	require.Len(t, sheet, 3)
	assert.Equal(t, "Resolution ID", sheet[0][0])
	assert.Equal(t, "res-1", sheet[1][0])
	assert.Equal(t, "Jane Smith", sheet[1][5])
	assert.Equal(t, "09876543", sheet[2][6])
}

func firstXLSX(t *testing.T, dir string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "leads-*.xlsx"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	return matches[0]
}

// fakeNotion records page operations against an in-memory page set.
type fakeNotion struct {
	pagesByResolution map[string]string
	created           []*notionapi.PageCreateRequest
	updated           map[string]*notionapi.PageUpdateRequest
}

func (f *fakeNotion) QueryDatabase(_ context.Context, _ string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	pf := req.Filter.(notionapi.PropertyFilter)
	resp := &notionapi.DatabaseQueryResponse{}
	if pageID, ok := f.pagesByResolution[pf.RichText.Equals]; ok {
		resp.Results = []notionapi.Page{{ID: notionapi.ObjectID(pageID)}}
	}
	return resp, nil
}

func (f *fakeNotion) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.created = append(f.created, req)
	return &notionapi.Page{ID: "page-new"}, nil
}

func (f *fakeNotion) UpdatePage(_ context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	if f.updated == nil {
		f.updated = make(map[string]*notionapi.PageUpdateRequest)
	}
	f.updated[pageID] = req
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func TestNotionSink_UpsertsByResolution(t *testing.T) {
	fn := &fakeNotion{pagesByResolution: map[string]string{"res-ind": "page-existing"}}
	sink := &NotionSink{Client: fn, DBID: "db-leads"}

	leads := []Lead{
		{ResolutionID: "res-ind", Address: "9 Waterfront Mews", Status: "resolved", OwnerType: "individual", OwnerName: "Jane Smith", Score: 5.2},
		{ResolutionID: "res-corp", Address: "12 Dock Road", Status: "corporate", OwnerType: "corporate", OwnerName: "DOCKSIDE HOLDINGS LTD", CompanyNo: "09876543"},
	}
	require.NoError(t, sink.Push(context.Background(), leads))

	// Existing page updated, new page created.
	require.Len(t, fn.created, 1)
	require.Contains(t, fn.updated, "page-existing")

	createdProps := fn.created[0].Properties
	title := createdProps["Address"].(notionapi.TitleProperty)
	assert.Equal(t, "12 Dock Road", title.Title[0].Text.Content)
	company := createdProps["Company Number"].(notionapi.RichTextProperty)
	assert.Equal(t, "09876543", company.RichText[0].Text.Content)

	updatedProps := fn.updated["page-existing"].Properties
	score := updatedProps["Score"].(notionapi.NumberProperty)
	assert.InDelta(t, 5.2, score.Number, 0.001)
}

// fakeSF plays back one existing lead keyed by postcode.
type fakeSF struct {
	existingByPostcode map[string]string
	inserted           [][]map[string]any
	updates            map[string]map[string]any
}

func (f *fakeSF) Query(_ context.Context, soql string, out any) error {
	leads := out.(*[]sfpkg.Lead)
	for postcode, id := range f.existingByPostcode {
		if strings.Contains(soql, postcode) {
			*leads = []sfpkg.Lead{{ID: id, PostalCode: postcode}}
		}
	}
	return nil
}

func (f *fakeSF) InsertOne(_ context.Context, _ string, record map[string]any) (string, error) {
	f.inserted = append(f.inserted, []map[string]any{record})
	return "00Qnew", nil
}

func (f *fakeSF) InsertCollection(_ context.Context, _ string, records []map[string]any) ([]sfpkg.CollectionResult, error) {
	f.inserted = append(f.inserted, records)
	results := make([]sfpkg.CollectionResult, len(records))
	for i := range records {
		results[i] = sfpkg.CollectionResult{ID: "00Q", Success: true}
	}
	return results, nil
}

func (f *fakeSF) UpdateOne(_ context.Context, _ string, id string, fields map[string]any) error {
	if f.updates == nil {
		f.updates = make(map[string]map[string]any)
	}
	f.updates[id] = fields
	return nil
}

func TestSalesforceSink_UpsertsByAddress(t *testing.T) {
	fs := &fakeSF{existingByPostcode: map[string]string{"E1 4GJ": "00Qold"}}
	sink := &SalesforceSink{Client: fs}

	leads := []Lead{
		{ResolutionID: "res-ind", Address: "9 Waterfront Mews, London, E1 4GJ", Postcode: "E1 4GJ", Status: "resolved", OwnerType: "individual", OwnerName: "Jane Smith"},
		{ResolutionID: "res-corp", Address: "12 Dock Road, London, E14 9GE", Postcode: "E14 9GE", Status: "corporate", OwnerType: "corporate", OwnerName: "DOCKSIDE HOLDINGS LTD", CompanyNo: "09876543"},
	}
	require.NoError(t, sink.Push(context.Background(), leads))

	// Existing record patched with the resolved owner.
	require.Contains(t, fs.updates, "00Qold")
	assert.Equal(t, "Smith", fs.updates["00Qold"]["LastName"])
	assert.Equal(t, "Private Owner", fs.updates["00Qold"]["Company"])

	// New record inserted through the collections API.
	require.Len(t, fs.inserted, 1)
	require.Len(t, fs.inserted[0], 1)
	assert.Equal(t, "LTD", fs.inserted[0][0]["LastName"])
	assert.Equal(t, "DOCKSIDE HOLDINGS LTD", fs.inserted[0][0]["Company"])
}

func TestLeadOwnerLabel(t *testing.T) {
	named := Lead{OwnerName: "Jane Smith"}
	assert.Equal(t, "Jane Smith", named.ownerLabel())

	anonymous := Lead{Status: "needs_title_register"}
	assert.Equal(t, "Unknown owner (needs_title_register)", anonymous.ownerLabel())
}

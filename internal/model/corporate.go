package model

import "time"

// CorporateOwnerRecord is one row of the bulk corporate-ownership dataset
// (e.g. HM Land Registry CCOD/OCOD). Rows are bulk-loaded on refresh and
// read-only during matching.
type CorporateOwnerRecord struct {
	ID            int64  `json:"id,omitempty"`
	OwnerName     string `json:"owner_name"`
	CompanyNumber string `json:"company_number,omitempty"`

	// Source address fields as published by the dataset.
	TitleNumber  string `json:"title_number,omitempty"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	Town         string `json:"town,omitempty"`
	Postcode     string `json:"postcode"`

	// Dataset is the provenance label of the bulk file the row came from.
	Dataset string `json:"dataset"`
}

// DatasetMeta describes the currently loaded corporate-ownership dataset.
type DatasetMeta struct {
	Dataset     string    `json:"dataset"`
	RowCount    int64     `json:"row_count"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

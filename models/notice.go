package models

import (
	"encoding/json"
	"sort"
)

// Unknown marks a field that could not be located. It is a valid terminal
// value for every string field, never an error.
const Unknown = "N/A"

// BasicRecord holds the fields available from a single row of the search
// results listing.
type BasicRecord struct {
	Identifier      string `bson:"identifier"`
	Description     string `bson:"description"`
	Country         string `bson:"country"`
	PublicationDate string `bson:"publication_date"`
	Deadline        string `bson:"deadline"`
}

// NewBasicRecord returns a BasicRecord with every field set to Unknown.
func NewBasicRecord() BasicRecord {
	return BasicRecord{
		Identifier:      Unknown,
		Description:     Unknown,
		Country:         Unknown,
		PublicationDate: Unknown,
		Deadline:        Unknown,
	}
}

// Organisation is one "ORG-" entry declared in a notice.
type Organisation struct {
	OrgID              string   `json:"org_id" bson:"org_id"`
	OfficialName       string   `json:"official_name" bson:"official_name"`
	RegistrationNumber string   `json:"registration_number" bson:"registration_number"`
	Roles              []string `json:"roles" bson:"roles"`
}

// DetailRecord holds the fields only available from a notice's detail page.
type DetailRecord struct {
	BuyerName        string         `bson:"buyer_name"`
	BuyerEmail       string         `bson:"buyer_email"`
	ValueOriginal    string         `bson:"value_original"`
	CurrencyOriginal string         `bson:"currency_original"`
	ValueConverted   string         `bson:"value_converted"`
	StartDate        string         `bson:"start_date"`
	EndDate          string         `bson:"end_date"`
	PDFLink          string         `bson:"pdf_link"`
	TenderID         string         `bson:"tender_id"`
	Organisations    []Organisation `bson:"organisations"`
}

// NewDetailRecord returns a DetailRecord with every field set to Unknown.
func NewDetailRecord() DetailRecord {
	return DetailRecord{
		BuyerName:        Unknown,
		BuyerEmail:       Unknown,
		ValueOriginal:    Unknown,
		CurrencyOriginal: Unknown,
		ValueConverted:   Unknown,
		StartDate:        Unknown,
		EndDate:          Unknown,
		PDFLink:          Unknown,
		TenderID:         Unknown,
		Organisations:    []Organisation{},
	}
}

// MergedRecord is the final output row: a basic record overlaid with its
// detail record. Error is empty unless the record failed validation,
// retrieval or parsing.
type MergedRecord struct {
	BasicRecord  `bson:",inline"`
	DetailRecord `bson:",inline"`

	Error string            `bson:"error,omitempty"`
	Extra map[string]string `bson:"extra,omitempty"`
}

// NewMergedRecord starts a merged record from a basic one.
func NewMergedRecord(basic BasicRecord) MergedRecord {
	return MergedRecord{
		BasicRecord:  basic,
		DetailRecord: NewDetailRecord(),
	}
}

// Apply overlays detail fields onto the record. A known value is never
// replaced by Unknown.
func (m *MergedRecord) Apply(d DetailRecord) {
	m.BuyerName = overlay(m.BuyerName, d.BuyerName)
	m.BuyerEmail = overlay(m.BuyerEmail, d.BuyerEmail)
	m.ValueOriginal = overlay(m.ValueOriginal, d.ValueOriginal)
	m.CurrencyOriginal = overlay(m.CurrencyOriginal, d.CurrencyOriginal)
	m.ValueConverted = overlay(m.ValueConverted, d.ValueConverted)
	m.StartDate = overlay(m.StartDate, d.StartDate)
	m.EndDate = overlay(m.EndDate, d.EndDate)
	m.PDFLink = overlay(m.PDFLink, d.PDFLink)
	m.TenderID = overlay(m.TenderID, d.TenderID)
	if len(d.Organisations) > 0 {
		m.Organisations = d.Organisations
	}
}

// SetExtra records an additional output field.
func (m *MergedRecord) SetExtra(key, value string) {
	if m.Extra == nil {
		m.Extra = make(map[string]string)
	}
	m.Extra[key] = value
}

// Failed reports whether the record carries an error marker.
func (m *MergedRecord) Failed() bool {
	return m.Error != ""
}

func overlay(current, next string) string {
	if next == "" || next == Unknown {
		return current
	}
	return next
}

// Columns is the preferred column order for tabular output.
var Columns = []string{
	"identifier", "description", "country", "publication_date", "deadline",
	"buyer_name", "buyer_email", "tender_id", "organisations",
	"value_original", "currency_original", "value_converted",
	"start_date", "end_date", "pdf_link", "error",
}

// OrganisationsJSON serialises the organisation list as a JSON array.
func (m *MergedRecord) OrganisationsJSON() string {
	orgs := m.Organisations
	if orgs == nil {
		orgs = []Organisation{}
	}
	data, err := json.Marshal(orgs)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// Row returns the values for Columns followed by the values of extraKeys.
func (m *MergedRecord) Row(extraKeys []string) []string {
	row := []string{
		m.Identifier, m.Description, m.Country, m.PublicationDate, m.Deadline,
		m.BuyerName, m.BuyerEmail, m.TenderID, m.OrganisationsJSON(),
		m.ValueOriginal, m.CurrencyOriginal, m.ValueConverted,
		m.StartDate, m.EndDate, m.PDFLink, m.Error,
	}
	for _, k := range extraKeys {
		row = append(row, m.Extra[k])
	}
	return row
}

// ExtraKeys returns the sorted union of extra field names across records.
func ExtraKeys(records []MergedRecord) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r.Extra {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Report summarises a finished batch.
type Report struct {
	TotalRecords     int
	Succeeded        int
	Failed           int
	WithBuyer        int
	WithValue        int
	WithConversion   int
	Organisations    int
	RecordsByCountry map[string]int
	Errors           map[string]string
}

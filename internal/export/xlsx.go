package export

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// leadColumns are the ordered columns of the Leads sheet.
var leadColumns = []string{
	"Business Name",
	"Address",
	"Latitude",
	"Longitude",
	"Phone",
	"Website",
	"Email",
	"Best Email",
	"Scraped Emails",
	"Scraped Phones",
	"Social Links",
	"Sources",
	"Confidence",
}

var draftColumns = []string{"Lead ID", "To", "Language", "Subject", "Body", "Generator"}

// Workbook builds an xlsx file with a Leads sheet and, when drafts are
// given, an Emails sheet.
func Workbook(leads []model.Lead, drafts []model.EmailDraft) (*xlsx.File, error) {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("Leads")
	if err != nil {
		return nil, eris.Wrap(err, "xlsx export: add leads sheet")
	}
	addHeader(sheet, leadColumns)
	for _, l := range leads {
		row := sheet.AddRow()
		row.AddCell().SetString(l.Name)
		row.AddCell().SetString(l.Address)
		addCoord(row, l.Latitude)
		addCoord(row, l.Longitude)
		row.AddCell().SetString(contactPhone(l))
		row.AddCell().SetString(l.Website)
		row.AddCell().SetString(l.Email)
		row.AddCell().SetString(l.BestEmail)
		row.AddCell().SetString(strings.Join(l.Enrichment.Emails, ", "))
		row.AddCell().SetString(strings.Join(l.Enrichment.Phones, ", "))
		row.AddCell().SetString(socialList(l.Enrichment.SocialLinks))
		row.AddCell().SetString(l.SourceList())
		row.AddCell().SetFloat(l.ConfidenceScore)
	}

	if len(drafts) > 0 {
		ds, err := f.AddSheet("Emails")
		if err != nil {
			return nil, eris.Wrap(err, "xlsx export: add emails sheet")
		}
		addHeader(ds, draftColumns)
		for _, d := range drafts {
			row := ds.AddRow()
			for _, v := range []string{d.LeadID, d.ToAddress, d.Language, d.Subject, d.Body, d.Generator} {
				row.AddCell().SetString(v)
			}
		}
	}
	return f, nil
}

// WriteXLSX writes the workbook to w.
func WriteXLSX(w io.Writer, leads []model.Lead, drafts []model.EmailDraft) error {
	f, err := Workbook(leads, drafts)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "xlsx export: write")
	}
	return nil
}

// SaveXLSX writes the workbook to path.
func SaveXLSX(path string, leads []model.Lead, drafts []model.EmailDraft) error {
	f, err := Workbook(leads, drafts)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "xlsx export: save %s", path)
	}
	return nil
}

func addHeader(sheet *xlsx.Sheet, cols []string) {
	row := sheet.AddRow()
	for _, c := range cols {
		row.AddCell().SetString(c)
	}
}

func addCoord(row *xlsx.Row, v *float64) {
	cell := row.AddCell()
	if v != nil {
		cell.SetFloat(*v)
	}
}

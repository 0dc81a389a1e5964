package ingest

import (
	"strings"

	"github.com/medinor/dashboard/model"
)

// Client master column names, as exported by the ERP.
const (
	ColClientCode  = "COD_CLIENT"
	ColClientName  = "RAZON_SOCI"
	ColClientTaxID = "IDENTIFTRI"
	ColClientLevel = "LEVEL"
)

// ClientVariant reads client rows. Headers must match exactly, ignoring
// case; code and tax ID are mandatory and the name is upper-cased.
func ClientVariant() Variant[model.ClientRecord] {
	return Variant[model.ClientRecord]{
		Entity: model.EntityClients,
		Columns: []Column{
			{Name: ColClientCode, Required: true},
			{Name: ColClientName, Required: true},
			{Name: ColClientTaxID, Required: true},
			{Name: ColClientLevel},
		},
		Matchers: []Matcher{ExactMatcher{}},
		Build:    buildClient,
		Key:      model.ClientRecord.Key,
	}
}

func buildClient(row Row) (model.ClientRecord, bool) {
	rec := model.ClientRecord{
		Code:  row.Get(ColClientCode),
		Name:  strings.ToUpper(row.Get(ColClientName)),
		TaxID: row.Get(ColClientTaxID),
		Level: parseLevel(row.Get(ColClientLevel)),
	}
	if rec.Code == "" || rec.TaxID == "" {
		return model.ClientRecord{}, false
	}
	return rec, true
}

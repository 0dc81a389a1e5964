package ingest

import "github.com/medinor/dashboard/model"

// Product catalog column names.
const (
	ColProductCode      = "Código"
	ColProductLab       = "Laboratorio"
	ColProductDesc      = "Descripción"
	ColProductCategory  = "Rubro"
	ColProductNotes     = "Observaciones"
	ColProductExtraDesc = "Desc. Adicional"
	ColProductIVA       = "Cod. IVA"
	ColProductMedinor   = "Pr. Medinor"
	ColProductPublic    = "Pr. Público"
	ColProductPrice     = "Precio"
)

// productAliases covers headers mangled by a UTF-8 file being read as
// Latin-1 (and the reverse) before it reached us.
var productAliases = AliasMatcher{
	ColProductCode:   {"CÃ³digo", "C�digo"},
	ColProductDesc:   {"DescripciÃ³n", "Descripci�n"},
	ColProductPublic: {"Pr. PÃºblico", "Pr. P�blico"},
}

// ProductVariant reads catalog rows. Headers are matched exactly, then by
// alias, then by normalized key.
func ProductVariant() Variant[model.ProductRecord] {
	return Variant[model.ProductRecord]{
		Entity: model.EntityProducts,
		Columns: []Column{
			{Name: ColProductCode, Required: true},
			{Name: ColProductLab, Required: true},
			{Name: ColProductDesc, Required: true},
			{Name: ColProductCategory},
			{Name: ColProductNotes},
			{Name: ColProductExtraDesc},
			{Name: ColProductIVA},
			{Name: ColProductMedinor, Required: true},
			{Name: ColProductPublic, Required: true},
			{Name: ColProductPrice, Required: true},
		},
		Matchers: []Matcher{ExactMatcher{}, productAliases, NormalizedMatcher{}},
		Build:    buildProduct,
		Key:      model.ProductRecord.Key,
	}
}

func buildProduct(row Row) (model.ProductRecord, bool) {
	rec := model.ProductRecord{
		Code:         row.Get(ColProductCode),
		Lab:          row.Get(ColProductLab),
		Desc:         row.Get(ColProductDesc),
		Category:     row.Get(ColProductCategory),
		Notes:        optionalString(row.Get(ColProductNotes)),
		ExtraDesc:    optionalString(row.Get(ColProductExtraDesc)),
		IVA:          parseIVA(row.Get(ColProductIVA)),
		MedinorPrice: parsePrice(row.Get(ColProductMedinor)),
		PublicPrice:  parsePrice(row.Get(ColProductPublic)),
		Price:        parsePrice(row.Get(ColProductPrice)),
	}
	if rec.Code == "" || rec.Lab == "" || rec.Desc == "" {
		return model.ProductRecord{}, false
	}
	return rec, true
}

package model

// ClientRecord is a client row after ingestion. JSON names follow the
// legacy export columns the backend expects on /clients/analyze.
type ClientRecord struct {
	Code  string `json:"COD_CLIENT"`
	Name  string `json:"RAZON_SOCI"`
	TaxID string `json:"IDENTIFTRI"`
	Level *int   `json:"LEVEL,omitempty"`
}

// Key returns the natural key used for in-batch deduplication.
func (r ClientRecord) Key() string { return r.Code }

// ProductRecord is a product row after ingestion.
type ProductRecord struct {
	Code         string  `json:"code"`
	Lab          string  `json:"lab"`
	Desc         string  `json:"desc"`
	Category     string  `json:"category"`
	Notes        *string `json:"notes"`
	ExtraDesc    *string `json:"extra_desc"`
	IVA          bool    `json:"iva"`
	MedinorPrice float64 `json:"medinor_price"`
	PublicPrice  float64 `json:"public_price"`
	Price        float64 `json:"price"`

	// ImageURL is always null on ingestion; images are attached later.
	ImageURL *string `json:"imageUrl"`
}

// Key returns the natural key used for in-batch deduplication.
func (r ProductRecord) Key() string { return r.Code }

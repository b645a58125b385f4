package enums

// TaxCategory is the VAT band a product is sold under. It is stored for
// reporting only; prices in history are already gross.
type TaxCategory string

const (
	TaxCategoryStandard TaxCategory = "standard"
	TaxCategoryReduced  TaxCategory = "reduced"
	TaxCategoryZero     TaxCategory = "zero"
	TaxCategoryExempt   TaxCategory = "exempt"
)

var taxCategories = newSet(
	TaxCategoryStandard,
	TaxCategoryReduced,
	TaxCategoryZero,
	TaxCategoryExempt,
)

func (t TaxCategory) String() string { return string(t) }

func (t TaxCategory) IsValid() bool { return taxCategories.has(t) }

func ParseTaxCategory(value string) (TaxCategory, error) {
	return taxCategories.parseLower("tax category", value)
}

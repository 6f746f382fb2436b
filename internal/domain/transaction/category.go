package transaction

// Category is the application's fixed transaction-category enum.
type Category string

const (
	CategoryIncome        Category = "income"
	CategoryTransfer      Category = "transfer"
	CategoryFood          Category = "food"
	CategoryShopping      Category = "shopping"
	CategoryEntertainment Category = "entertainment"
	CategoryTravel        Category = "travel"
	CategoryTransport     Category = "transport"
	CategoryBills         Category = "bills"
	CategoryFees          Category = "fees"
	CategoryHealth        Category = "health"
	CategoryEducation     Category = "education"
	CategoryServices      Category = "services"
	CategoryOther         Category = "other"
)

// categoryMapping maps the provider's top-level category (the first, most
// general entry of the category path) to the local enum.
var categoryMapping = map[string]Category{
	"Income":             CategoryIncome,
	"Interest":           CategoryIncome,
	"Transfer":           CategoryTransfer,
	"Payment":            CategoryBills,
	"Rent and Utilities": CategoryBills,
	"Food and Drink":     CategoryFood,
	"Shops":              CategoryShopping,
	"Shopping":           CategoryShopping,
	"Recreation":         CategoryEntertainment,
	"Entertainment":      CategoryEntertainment,
	"Travel":             CategoryTravel,
	"Transportation":     CategoryTransport,
	"Bank Fees":          CategoryFees,
	"Healthcare":         CategoryHealth,
	"Medical":            CategoryHealth,
	"Education":          CategoryEducation,
	"Service":            CategoryServices,
	"Community":          CategoryServices,
}

// NormalizeCategory maps a provider category path (most general first) to the
// local enum. Empty or unknown paths map to CategoryOther.
func NormalizeCategory(path []string) Category {
	if len(path) == 0 {
		return CategoryOther
	}
	if c, ok := categoryMapping[path[0]]; ok {
		return c
	}
	return CategoryOther
}

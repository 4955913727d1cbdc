package ameritrade

import "slices"

// Price history period types.
const (
	PeriodDay   = "day"
	PeriodMonth = "month"
	PeriodYear  = "year"
	PeriodYTD   = "ytd"
)

// Price history frequency types.
const (
	FrequencyMinute  = "minute"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// periodTypes keeps the declaration order for error messages.
var periodTypes = []string{PeriodDay, PeriodMonth, PeriodYear, PeriodYTD}

var validPeriods = map[string][]int{
	PeriodDay:   {1, 2, 3, 4, 5, 10},
	PeriodMonth: {1, 2, 3, 6},
	PeriodYear:  {1, 2, 3, 5, 10, 15, 20},
	PeriodYTD:   {1},
}

type frequencyRule struct {
	periodTypes []string
	frequencies []int
}

var frequencyTypes = []string{FrequencyMinute, FrequencyDaily, FrequencyWeekly, FrequencyMonthly}

var validFrequencies = map[string]frequencyRule{
	FrequencyMinute:  {[]string{PeriodDay}, []int{1, 5, 10, 15, 30}},
	FrequencyDaily:   {[]string{PeriodMonth, PeriodYear, PeriodYTD}, []int{1}},
	FrequencyWeekly:  {[]string{PeriodMonth, PeriodYear, PeriodYTD}, []int{1}},
	FrequencyMonthly: {[]string{PeriodMonth}, []int{1}},
}

// Instrument search projections.
const (
	ProjectionSymbolSearch = "symbol-search"
	ProjectionSymbolRegex  = "symbol-regex"
	ProjectionDescSearch   = "desc-search"
	ProjectionDescRegex    = "desc-regex"
	ProjectionFundamental  = "fundamental"
)

var validProjections = []string{
	ProjectionSymbolSearch, ProjectionSymbolRegex,
	ProjectionDescSearch, ProjectionDescRegex, ProjectionFundamental,
}

// Market indices the movers endpoint accepts.
const (
	IndexCompx = "$COMPX"
	IndexDJI   = "$DJI"
	IndexSPX   = "$SPX.X"
)

var (
	validIndices    = []string{IndexCompx, IndexDJI, IndexSPX}
	validDirections = []string{"up", "down"}
	validChanges    = []string{"value", "percent"}
)

// Extra account sections.
const (
	FieldPositions = "positions"
	FieldOrders    = "orders"
)

var validAccountFields = []string{FieldPositions, FieldOrders}

// ValidPeriods returns the periods allowed for periodType.
func ValidPeriods(periodType string) []int {
	return slices.Clone(validPeriods[periodType])
}

// ValidFrequencies returns the frequencies allowed for frequencyType.
func ValidFrequencies(frequencyType string) []int {
	return slices.Clone(validFrequencies[frequencyType].frequencies)
}

// FrequencyPeriodTypes returns the period types frequencyType may be used with.
func FrequencyPeriodTypes(frequencyType string) []string {
	return slices.Clone(validFrequencies[frequencyType].periodTypes)
}

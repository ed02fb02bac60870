package symbols

import "strings"

// venueCodes maps a market name to the contract code each venue quotes it under.
var venueCodes = map[string]map[string]string{
	"cme": {
		"crude_oil":   "CL",
		"natural_gas": "NG",
		"heating_oil": "HO",
		"gasoline":    "RB",
		"power":       "PJM",
	},
	"sgx": {
		"crude_oil":      "DB",
		"fuel_oil":       "FO380",
		"lng":            "SLNG",
		"power":          "SEP",
		"carbon_credits": "CIX",
	},
	"guyana-energy": {
		"crude_oil":      "GY_CRUDE",
		"natural_gas":    "GY_GAS",
		"carbon_credits": "GY_CARBON",
	},
}

// ToVenue converts a market name such as crude_oil into the venue's contract
// code. Unknown exchanges or markets fall back to the upper-cased market name.
func ToVenue(exchange, market string) string {
	market = Normalize(market)
	if codes, ok := venueCodes[strings.ToLower(exchange)]; ok {
		if code, ok := codes[market]; ok {
			return code
		}
	}
	return strings.ToUpper(market)
}

// ToMarket is the inverse of ToVenue. The second result is false when the
// code is not known for the exchange.
func ToMarket(exchange, code string) (string, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for market, c := range venueCodes[strings.ToLower(exchange)] {
		if c == code {
			return market, true
		}
	}
	return "", false
}

// Normalize lower-cases a market name and folds separators to underscores,
// so "Crude-Oil" and "crude oil" both become crude_oil.
func Normalize(market string) string {
	market = strings.ToLower(strings.TrimSpace(market))
	market = strings.ReplaceAll(market, "-", "_")
	return strings.ReplaceAll(market, " ", "_")
}

package geo

import "strings"

// countryCodes maps lowercase country names, including the aliases the
// result panel actually renders, to ISO-3166 alpha-2 codes. Best-effort
// only; the backend re-resolves from coordinates when the label is unknown.
var countryCodes = map[string]string{
	"afghanistan":              "AF",
	"albania":                  "AL",
	"argentina":                "AR",
	"australia":                "AU",
	"austria":                  "AT",
	"bangladesh":               "BD",
	"belgium":                  "BE",
	"bolivia":                  "BO",
	"botswana":                 "BW",
	"brazil":                   "BR",
	"bulgaria":                 "BG",
	"cambodia":                 "KH",
	"canada":                   "CA",
	"chile":                    "CL",
	"china":                    "CN",
	"colombia":                 "CO",
	"croatia":                  "HR",
	"czechia":                  "CZ",
	"czech republic":           "CZ",
	"denmark":                  "DK",
	"ecuador":                  "EC",
	"egypt":                    "EG",
	"estonia":                  "EE",
	"eswatini":                 "SZ",
	"finland":                  "FI",
	"france":                   "FR",
	"germany":                  "DE",
	"ghana":                    "GH",
	"greece":                   "GR",
	"guatemala":                "GT",
	"hungary":                  "HU",
	"iceland":                  "IS",
	"india":                    "IN",
	"indonesia":                "ID",
	"ireland":                  "IE",
	"israel":                   "IL",
	"italy":                    "IT",
	"japan":                    "JP",
	"jordan":                   "JO",
	"kenya":                    "KE",
	"kyrgyzstan":               "KG",
	"laos":                     "LA",
	"latvia":                   "LV",
	"lesotho":                  "LS",
	"lithuania":                "LT",
	"luxembourg":               "LU",
	"malaysia":                 "MY",
	"mexico":                   "MX",
	"mongolia":                 "MN",
	"montenegro":               "ME",
	"netherlands":              "NL",
	"the netherlands":          "NL",
	"new zealand":              "NZ",
	"nigeria":                  "NG",
	"north macedonia":          "MK",
	"norway":                   "NO",
	"pakistan":                 "PK",
	"peru":                     "PE",
	"philippines":              "PH",
	"poland":                   "PL",
	"portugal":                 "PT",
	"romania":                  "RO",
	"russia":                   "RU",
	"senegal":                  "SN",
	"serbia":                   "RS",
	"singapore":                "SG",
	"slovakia":                 "SK",
	"slovenia":                 "SI",
	"south africa":             "ZA",
	"south korea":              "KR",
	"spain":                    "ES",
	"sri lanka":                "LK",
	"sweden":                   "SE",
	"switzerland":              "CH",
	"taiwan":                   "TW",
	"thailand":                 "TH",
	"tunisia":                  "TN",
	"turkey":                   "TR",
	"türkiye":                  "TR",
	"uganda":                   "UG",
	"ukraine":                  "UA",
	"united arab emirates":     "AE",
	"united kingdom":           "GB",
	"united states":            "US",
	"united states of america": "US",
	"uruguay":                  "UY",
	"vietnam":                  "VN",
}

// CountryCode normalizes a scraped country label to an ISO alpha-2 code.
// An already-two-letter label passes through uppercased; unknown labels
// return "" and the caller sends the raw label along.
func CountryCode(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	if code, ok := countryCodes[strings.ToLower(label)]; ok {
		return code
	}
	if len(label) == 2 && isAlpha(label) {
		return strings.ToUpper(label)
	}
	return ""
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

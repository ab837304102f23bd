package address

// stateCodes maps Brazilian state names, as Nominatim spells them in
// Portuguese, to their two-letter codes.
var stateCodes = map[string]string{
	"Acre":                "AC",
	"Alagoas":             "AL",
	"Amapá":               "AP",
	"Amazonas":            "AM",
	"Bahia":               "BA",
	"Ceará":               "CE",
	"Distrito Federal":    "DF",
	"Espírito Santo":      "ES",
	"Goiás":               "GO",
	"Maranhão":            "MA",
	"Mato Grosso":         "MT",
	"Mato Grosso do Sul":  "MS",
	"Minas Gerais":        "MG",
	"Pará":                "PA",
	"Paraíba":             "PB",
	"Paraná":              "PR",
	"Pernambuco":          "PE",
	"Piauí":               "PI",
	"Rio de Janeiro":      "RJ",
	"Rio Grande do Norte": "RN",
	"Rio Grande do Sul":   "RS",
	"Rondônia":            "RO",
	"Roraima":             "RR",
	"Santa Catarina":      "SC",
	"São Paulo":           "SP",
	"Sergipe":             "SE",
	"Tocantins":           "TO",
}

// StateCode returns the two-letter code for a state name. Unknown names,
// including codes, are returned unchanged.
func StateCode(name string) string {
	if code, ok := stateCodes[name]; ok {
		return code
	}
	return name
}

type cityState struct {
	City  string
	State string
}

// fallbackCities are substituted when the device location cannot be resolved.
var fallbackCities = []cityState{
	{"São Paulo", "SP"},
	{"Rio de Janeiro", "RJ"},
	{"Brasília", "DF"},
	{"Salvador", "BA"},
	{"Fortaleza", "CE"},
	{"Belo Horizonte", "MG"},
	{"Manaus", "AM"},
	{"Curitiba", "PR"},
	{"Recife", "PE"},
	{"Porto Alegre", "RS"},
	{"Belém", "PA"},
	{"Goiânia", "GO"},
	{"Guarulhos", "SP"},
	{"Campinas", "SP"},
	{"São Luís", "MA"},
	{"São Gonçalo", "RJ"},
	{"Maceió", "AL"},
	{"Duque de Caxias", "RJ"},
	{"Natal", "RN"},
	{"Teresina", "PI"},
}

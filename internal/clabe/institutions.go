package clabe

// UnknownInstitution is returned for bank codes missing from the catalog.
const UnknownInstitution = "Banco Desconocido"

// InstitutionCatalog resolves a 3 digit bank code to an institution name.
type InstitutionCatalog interface {
	LookupInstitutionByRoutingPrefix(prefix3 string) (string, bool)
}

// StaticCatalog is an in-memory bank code table.
type StaticCatalog map[string]string

func (c StaticCatalog) LookupInstitutionByRoutingPrefix(prefix3 string) (string, bool) {
	name, ok := c[prefix3]
	return name, ok
}

// DefaultCatalog holds the participant codes seen most often on SPEI.
var DefaultCatalog = StaticCatalog{
	"002": "Banamex",
	"006": "Bancomext",
	"009": "Banobras",
	"012": "BBVA",
	"014": "Santander",
	"019": "Banjercito",
	"021": "HSBC",
	"030": "BanBajío",
	"036": "Inbursa",
	"042": "Mifel",
	"044": "Scotiabank",
	"058": "Banregio",
	"059": "Invex",
	"060": "Bansi",
	"062": "Afirme",
	"072": "Banorte",
	"106": "Bank of America",
	"112": "Bmonex",
	"113": "Ve por Más",
	"127": "Banco Azteca",
	"130": "Compartamos",
	"137": "BanCoppel",
	"138": "ABC Capital",
	"145": "Bancrea",
	"166": "Banco del Bienestar",
	"638": "Nu México",
	"646": "STP",
	"652": "Credicapital",
	"659": "Opciones Empresariales del Noreste",
	"722": "Mercado Pago",
}

// LookupInstitution resolves the institution for a routing code using the default catalog.
func LookupInstitution(code string) string {
	return LookupInstitutionIn(DefaultCatalog, code)
}

// LookupInstitutionIn resolves the institution for a routing code. Codes shorter
// than three characters or with an unknown prefix yield UnknownInstitution.
func LookupInstitutionIn(catalog InstitutionCatalog, code string) string {
	if catalog == nil || len(code) < 3 {
		return UnknownInstitution
	}
	if name, ok := catalog.LookupInstitutionByRoutingPrefix(code[:3]); ok {
		return name
	}
	return UnknownInstitution
}

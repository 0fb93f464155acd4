package procurement

// Record is the canonical, fully defaulted shape of one procurement process.
// Every string is "" and every number is 0 when the source omitted it.
type Record struct {
	OCID          string     `json:"ocid"`
	ContractID    string     `json:"contractId"`
	Date          string     `json:"date"`
	PublishedDate string     `json:"publishedDate"`
	Buyer         Buyer      `json:"buyer"`
	Tender        Tender     `json:"tender"`
	Parties       []Party    `json:"parties"`
	Documents     []Document `json:"documents"`
	Awards        []Award    `json:"awards"`
	Contracts     []Contract `json:"contracts"`
}

type Buyer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Tender struct {
	ID                       string  `json:"id"`
	Title                    string  `json:"title"`
	Description              string  `json:"description"`
	ProcurementMethod        string  `json:"procurementMethod"`
	ProcurementMethodDetails string  `json:"procurementMethodDetails"`
	MainCategory             string  `json:"mainCategory"`
	Value                    float64 `json:"value"`
	Currency                 string  `json:"currency"`
	DatePublished            string  `json:"datePublished"`
	Items                    []Item  `json:"items"`
}

type Item struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	TotalValue  float64 `json:"totalValue"`
}

type Party struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Roles       []string `json:"roles"`
	TaxID       string   `json:"taxId"`
	Address     string   `json:"address"`
	Region      string   `json:"region"`
	Department  string   `json:"department"`
	Locality    string   `json:"locality"`
	CountryName string   `json:"countryName"`
	ContactName string   `json:"contactName"`
	Email       string   `json:"email"`
	Telephone   string   `json:"telephone"`
}

type Document struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	DatePublished string `json:"datePublished"`
	DocumentType  string `json:"documentType"`
	Language      string `json:"language"`
}

type Award struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency"`
	Date      string     `json:"date"`
	Status    string     `json:"status"`
	Suppliers []Supplier `json:"suppliers"`
}

type Supplier struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	TaxID     string `json:"taxId"`
	LegalName string `json:"legalName"`
	Address   string `json:"address"`
	Region    string `json:"region"`
}

type Contract struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	AwardID     string  `json:"awardId"`
	Status      string  `json:"status"`
}

// Published is the date the procurement is stamped with: the release's publishedDate,
// else the tender's datePublished.
func (r *Record) Published() string {
	if r.PublishedDate != "" {
		return r.PublishedDate
	}
	return r.Tender.DatePublished
}

// Party returns the party with the given id, if any.
func (r *Record) Party(id string) (Party, bool) {
	if id == "" {
		return Party{}, false
	}
	for _, p := range r.Parties {
		if p.ID == id {
			return p, true
		}
	}
	return Party{}, false
}

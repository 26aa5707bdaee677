package certificate

// Outcome is the status of a single fetch attempt.
type Outcome string

const (
	OutcomeFinished Outcome = "finalizado"
	OutcomeError    Outcome = "erro"
)

// Request identifies the subject of one fetch.
type Request struct {
	SubjectID  string
	MotherName string
}

// Result is the uniform outcome of one fetch, whatever the issuer's shape.
type Result struct {
	Category   Category `json:"tipo_doc"`
	Outcome    Outcome  `json:"status"`
	FileName   string   `json:"arquivo,omitempty"`
	FileURL    string   `json:"arquivo_url,omitempty"`
	Text       string   `json:"texto_doc,omitempty"`
	Pendency   bool     `json:"pendencia"`
	HolderName string   `json:"nome,omitempty"`
	Message    string   `json:"mensagem,omitempty"`
	Err        error    `json:"-"`
}

// OK reports whether the document was fetched and stored.
func (r Result) OK() bool {
	return r.Outcome == OutcomeFinished
}

func failure(category Category, err error) Result {
	return Result{
		Category: category,
		Outcome:  OutcomeError,
		Message:  err.Error(),
		Err:      err,
	}
}

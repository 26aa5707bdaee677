package model

import "time"

// Slot names one stored document reference on an owner. The values match the
// column names of the proprietario and esposa_socio tables.
type Slot string

const (
	SlotStateTax       Slot = "pdf_sefaz"
	SlotLabor          Slot = "pdf_trabalho"
	SlotCivilRecord    Slot = "pdf_nada_consta_civel"
	SlotCriminalRecord Slot = "pdf_nada_consta_criminal"
	SlotBankruptcy     Slot = "pdf_nada_consta_falencia"
	SlotSpecialRecord  Slot = "pdf_nada_consta_especial"
	SlotRevenue        Slot = "pdf_receita"
	SlotCourtCriminal  Slot = "pdf_tjdf_criminal"
	SlotCourtElectoral Slot = "pdf_tjdf_eleitoral"
	SlotCourtCivil     Slot = "pdf_tjdf_civel"
	SlotAD             Slot = "ad"
)

// AllSlots lists every slot in column order.
var AllSlots = []Slot{
	SlotStateTax, SlotLabor, SlotCivilRecord, SlotCriminalRecord, SlotBankruptcy,
	SlotSpecialRecord, SlotRevenue, SlotCourtCriminal, SlotCourtElectoral, SlotCourtCivil, SlotAD,
}

// Valid reports whether s is a known column.
func (s Slot) Valid() bool {
	for _, known := range AllSlots {
		if s == known {
			return true
		}
	}
	return false
}

// Documents holds the latest stored document reference per slot. Missing
// keys mean the slot was never filled.
type Documents map[Slot]string

// Get returns the stored reference for slot, if any.
func (d Documents) Get(slot Slot) (string, bool) {
	v, ok := d[slot]
	return v, ok && v != ""
}

// Owner is an individual or company subject attached to a case (a
// "proprietario"). Companies reuse Name for the legal name and carry the
// representative fields; individuals carry the mother's name and marital status.
type Owner struct {
	ID            int64      `json:"id"`
	CaseID        int64      `json:"analise_id"`
	Name          string     `json:"nome_razao"`
	MotherName    string     `json:"nome_mae,omitempty"`
	TaxID         string     `json:"cpf_cnpj"`
	BirthDate     *time.Time `json:"data_nascimento,omitempty"`
	MaritalStatus string     `json:"estado_civil,omitempty"`
	IsCompany     bool       `json:"e_empresa"`

	TradeName              string     `json:"nome_fantasia,omitempty"`
	RepresentativeName     string     `json:"nome_representante,omitempty"`
	RepresentativeMother   string     `json:"nome_mae_representante,omitempty"`
	RepresentativeTaxID    string     `json:"cpf_representante,omitempty"`
	RepresentativeBirthday *time.Time `json:"data_nascimento_representante,omitempty"`

	Documents Documents `json:"documentos"`
	Spouse    *Spouse   `json:"conjuge,omitempty"`
}

// Spouse mirrors the owner's document slots. Present only for married
// individuals; the certificate pipeline does not fill it yet.
type Spouse struct {
	ID         int64      `json:"id"`
	OwnerID    int64      `json:"proprietario_id"`
	Name       string     `json:"nome"`
	TaxID      string     `json:"cpf"`
	BirthDate  *time.Time `json:"data_nascimento,omitempty"`
	MotherName string     `json:"nome_mae,omitempty"`
	Documents  Documents  `json:"documentos"`
}

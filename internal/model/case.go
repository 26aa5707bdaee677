// Package model contains the struct definitions shared across packages: the
// due-diligence case, its owners, and the certificate run ledger.
package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a case, owner or run does not exist.
// Callers compare with errors.Is since stores wrap it with context.
var ErrNotFound = errors.New("not found")

// CaseStatus describes the case lifecycle. It only ever moves forward:
// pending -> in_progress -> completed.
type CaseStatus string

const (
	StatusPending    CaseStatus = "pending"
	StatusInProgress CaseStatus = "in_progress"
	StatusCompleted  CaseStatus = "completed"
)

var statusRank = map[CaseStatus]int{
	StatusPending:    0,
	StatusInProgress: 1,
	StatusCompleted:  2,
}

// Advance returns the later of the current and next status so that a case
// never regresses. Unknown values are treated as pending.
func (s CaseStatus) Advance(next CaseStatus) CaseStatus {
	if statusRank[next] >= statusRank[s] {
		return next
	}
	return s
}

// Case is one property title due-diligence dossier (an "analise").
type Case struct {
	ID          int64      `json:"id"`
	Status      CaseStatus `json:"status"`
	DossierLink *string    `json:"link_pdf,omitempty"`
	Summary     *string    `json:"resumo,omitempty"`
	CreatedAt   time.Time  `json:"data"`
	UserID      string     `json:"usuario_id"`
}

// Property is the real estate attached to a case. The certificate pipeline
// never reads it.
type Property struct {
	ID               int64   `json:"id"`
	CaseID           int64   `json:"analise_id"`
	PostalCode       *string `json:"cep,omitempty"`
	Address          *string `json:"endereco,omitempty"`
	MunicipalTaxID   *string `json:"inscricao_iptu,omitempty"`
	RegistryOffice   *string `json:"cartorio,omitempty"`
	RegistryNumber   *string `json:"matricula,omitempty"`
	StateTaxDocument *string `json:"pdf_sefaz,omitempty"`
}

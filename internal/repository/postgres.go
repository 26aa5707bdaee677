// Package repository is the Postgres store for cases, owners and the
// certificate run ledger.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dharsanguruparan/certdossier/internal/model"
)

// Repository wraps all SQL used by the API and the worker.
type Repository struct {
	db *sql.DB
}

// New constructs a repository over db.
func New(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

var slotColumns = func() string {
	cols := make([]string, len(model.AllSlots))
	for i, s := range model.AllSlots {
		cols[i] = string(s)
	}
	return strings.Join(cols, ", ")
}()

var ownerColumns = `id_proprietario, analise_id, COALESCE(nome_razao,''), COALESCE(nome_mae,''),
	COALESCE(cpf_cnpj,''), data_nascimento, COALESCE(estado_civil,''), COALESCE(e_empresa,0),
	COALESCE(nome_fantasia,''), COALESCE(nome_representante,''), COALESCE(nome_mae_representante,''),
	COALESCE(cpf_representante,''), data_nascimento_representante, ` + slotColumns

// GetCase returns the case with id.
func (r *Repository) GetCase(ctx context.Context, id int64) (*model.Case, error) {
	var (
		c      model.Case
		status sql.NullString
		link   sql.NullString
		resumo sql.NullString
		user   sql.NullString
	)
	row := r.db.QueryRowContext(ctx, `
		SELECT id_analise, status, link_pdf, resumo, data, usuario_id
		FROM analise WHERE id_analise = $1
	`, id)
	if err := row.Scan(&c.ID, &status, &link, &resumo, &c.CreatedAt, &user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("case %d: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("select case: %w", err)
	}
	c.Status = parseStatus(status.String)
	c.DossierLink = optional(link)
	c.Summary = optional(resumo)
	c.UserID = user.String
	return &c, nil
}

// GetFirstOwnerByCase returns the owner with the lowest id on the case.
func (r *Repository) GetFirstOwnerByCase(ctx context.Context, caseID int64) (*model.Owner, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ownerColumns+`
		FROM proprietario WHERE analise_id = $1
		ORDER BY id_proprietario LIMIT 1`, caseID)
	o, err := scanOwner(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("owner of case %d: %w", caseID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("select owner: %w", err)
	}
	return o, nil
}

// ListOwners returns every owner of the case with their spouses.
func (r *Repository) ListOwners(ctx context.Context, caseID int64) ([]model.Owner, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ownerColumns+`
		FROM proprietario WHERE analise_id = $1
		ORDER BY id_proprietario`, caseID)
	if err != nil {
		return nil, fmt.Errorf("select owners: %w", err)
	}
	defer rows.Close()
	var owners []model.Owner
	index := make(map[int64]int)
	for rows.Next() {
		o, err := scanOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan owner: %w", err)
		}
		index[o.ID] = len(owners)
		owners = append(owners, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owners: %w", err)
	}
	if len(owners) == 0 {
		return owners, nil
	}

	spouses, err := r.db.QueryContext(ctx, `
		SELECT e.id_esposa_socio, e.proprietario_id, COALESCE(e.nome,''), COALESCE(e.cpf,''),
			e.data_nascimento, COALESCE(e.nome_mae,''), `+prefixed("e.", model.AllSlots)+`
		FROM esposa_socio e
		JOIN proprietario p ON p.id_proprietario = e.proprietario_id
		WHERE p.analise_id = $1`, caseID)
	if err != nil {
		return nil, fmt.Errorf("select spouses: %w", err)
	}
	defer spouses.Close()
	for spouses.Next() {
		var (
			sp    model.Spouse
			birth sql.NullTime
		)
		slots := make([]sql.NullString, len(model.AllSlots))
		dest := []any{&sp.ID, &sp.OwnerID, &sp.Name, &sp.TaxID, &birth, &sp.MotherName}
		for i := range slots {
			dest = append(dest, &slots[i])
		}
		if err := spouses.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan spouse: %w", err)
		}
		sp.BirthDate = optionalTime(birth)
		sp.Documents = documents(slots)
		if i, ok := index[sp.OwnerID]; ok {
			owners[i].Spouse = &sp
		}
	}
	if err := spouses.Err(); err != nil {
		return nil, fmt.Errorf("iterate spouses: %w", err)
	}
	return owners, nil
}

// UpdateOwnerDocumentSlot stores ref in one owner slot.
func (r *Repository) UpdateOwnerDocumentSlot(ctx context.Context, ownerID int64, slot model.Slot, ref string) error {
	return updateSlot(ctx, r.db, ownerID, slot, ref)
}

// UpdateCaseStatusAndLink sets the case status and, when link is non-nil,
// the dossier link.
func (r *Repository) UpdateCaseStatusAndLink(ctx context.Context, caseID int64, status model.CaseStatus, link *string) error {
	return updateCase(ctx, r.db, caseID, status, link)
}

// CommitCase applies every slot write and the case update in one transaction.
func (r *Repository) CommitCase(ctx context.Context, commit model.CaseCommit) error {
	for slot := range commit.Slots {
		if !slot.Valid() {
			return fmt.Errorf("unknown document slot %q", slot)
		}
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	// Column order keeps statements deterministic.
	for _, slot := range model.AllSlots {
		ref, ok := commit.Slots[slot]
		if !ok {
			continue
		}
		if err := updateSlot(ctx, tx, commit.OwnerID, slot, ref); err != nil {
			return err
		}
	}
	if err := updateCase(ctx, tx, commit.CaseID, commit.Status, commit.DossierLink); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit case tx: %w", err)
	}
	return nil
}

func updateSlot(ctx context.Context, db execer, ownerID int64, slot model.Slot, ref string) error {
	if !slot.Valid() {
		return fmt.Errorf("unknown document slot %q", slot)
	}
	// The column name comes from the fixed slot list, never from input.
	res, err := db.ExecContext(ctx, `UPDATE proprietario SET `+string(slot)+` = $1 WHERE id_proprietario = $2`, ref, ownerID)
	if err != nil {
		return fmt.Errorf("update owner slot %s: %w", slot, err)
	}
	return expectRow(res, fmt.Sprintf("owner %d", ownerID))
}

func updateCase(ctx context.Context, db execer, caseID int64, status model.CaseStatus, link *string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE analise
		SET status = $1,
			link_pdf = COALESCE($2, link_pdf)
		WHERE id_analise = $3
	`, columnStatus(status), link, caseID)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	return expectRow(res, fmt.Sprintf("case %d", caseID))
}

// analise.status holds the legacy Portuguese values.
var statusColumn = map[model.CaseStatus]string{
	model.StatusPending:    "pendente",
	model.StatusInProgress: "em_progresso",
	model.StatusCompleted:  "concluida",
}

func columnStatus(status model.CaseStatus) string {
	if v, ok := statusColumn[status]; ok {
		return v
	}
	return string(status)
}

// parseStatus accepts both column spellings. Empty or unknown values read as pending.
func parseStatus(v string) model.CaseStatus {
	for status, column := range statusColumn {
		if v == column || v == string(status) {
			return status
		}
	}
	return model.StatusPending
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}

func scanOwner(row scanner) (*model.Owner, error) {
	var (
		o        model.Owner
		birth    sql.NullTime
		repBirth sql.NullTime
		company  int
	)
	slots := make([]sql.NullString, len(model.AllSlots))
	dest := []any{
		&o.ID, &o.CaseID, &o.Name, &o.MotherName, &o.TaxID, &birth, &o.MaritalStatus, &company,
		&o.TradeName, &o.RepresentativeName, &o.RepresentativeMother, &o.RepresentativeTaxID, &repBirth,
	}
	for i := range slots {
		dest = append(dest, &slots[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	o.IsCompany = company != 0
	o.BirthDate = optionalTime(birth)
	o.RepresentativeBirthday = optionalTime(repBirth)
	o.Documents = documents(slots)
	return &o, nil
}

func documents(values []sql.NullString) model.Documents {
	docs := model.Documents{}
	for i, v := range values {
		if v.Valid && v.String != "" {
			docs[model.AllSlots[i]] = v.String
		}
	}
	return docs
}

func prefixed(prefix string, slots []model.Slot) string {
	cols := make([]string, len(slots))
	for i, s := range slots {
		cols[i] = prefix + string(s)
	}
	return strings.Join(cols, ", ")
}

func optional(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

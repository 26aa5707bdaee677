package certificate

import (
	"fmt"

	"github.com/dharsanguruparan/certdossier/internal/model"
)

// ElectoralMode chooses where electoral certificates are stored on the owner.
type ElectoralMode string

const (
	// ElectoralAuto separates the electoral slot only for runs that issue the
	// extended set (revenue and special), as the five-category pipeline does.
	// Other runs share the civil slot, as the three-category gateway does.
	ElectoralAuto ElectoralMode = "auto"
	// ElectoralShared stores them in the civil slot.
	ElectoralShared ElectoralMode = "shared"
	// ElectoralSeparate gives them their own slot.
	ElectoralSeparate ElectoralMode = "separate"
)

// ParseElectoralMode rejects anything but the known modes. Empty means auto.
func ParseElectoralMode(s string) (ElectoralMode, error) {
	switch ElectoralMode(s) {
	case ElectoralAuto, "":
		return ElectoralAuto, nil
	case ElectoralShared:
		return ElectoralShared, nil
	case ElectoralSeparate:
		return ElectoralSeparate, nil
	}
	return "", fmt.Errorf("unknown electoral slot mode %q", s)
}

// Resolve returns the concrete mode for a run issuing categories.
func (m ElectoralMode) Resolve(categories []Category) ElectoralMode {
	if m != ElectoralAuto && m != "" {
		return m
	}
	var revenue, special bool
	for _, c := range categories {
		revenue = revenue || c == Revenue
		special = special || c == Special
	}
	if revenue && special {
		return ElectoralSeparate
	}
	return ElectoralShared
}

// SlotFor maps a category onto the owner slot that keeps its latest document.
// An unresolved auto mode behaves as shared.
func (m ElectoralMode) SlotFor(c Category) (model.Slot, bool) {
	switch c {
	case Criminal:
		return model.SlotCriminalRecord, true
	case Civil:
		return model.SlotCivilRecord, true
	case Electoral:
		if m == ElectoralSeparate {
			return model.SlotCourtElectoral, true
		}
		return model.SlotCivilRecord, true
	case Bankruptcy:
		return model.SlotBankruptcy, true
	case Special:
		return model.SlotSpecialRecord, true
	case Revenue:
		return model.SlotRevenue, true
	}
	return "", false
}

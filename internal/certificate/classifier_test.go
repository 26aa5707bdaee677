package certificate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCourtFamily(t *testing.T) {
	rules := DefaultRules()
	text := "PODER JUDICIARIO\nCERTIDÃO DE DISTRIBUIÇÃO\nMARIA DA SILVA\nOU\nCPF 123\nNÃO CONSTAM distribuições"

	v := rules.Classify(text, FamilyCourt)
	assert.False(t, v.Pendency)
	assert.Equal(t, "MARIA DA SILVA", v.HolderName)

	v = rules.Classify("CERTIDÃO\nMARIA\nOU\nCONSTAM 2 processos", FamilyCourt)
	assert.True(t, v.Pendency)
	assert.Equal(t, "MARIA", v.HolderName)
}

func TestCourtMarkerIsCaseSensitive(t *testing.T) {
	v := DefaultRules().Classify("não constam feitos", FamilyCourt)
	assert.True(t, v.Pendency)
	assert.Empty(t, v.HolderName)
}

func TestRevenueFamily(t *testing.T) {
	rules := DefaultRules()
	text := "Certidão Negativa\nNome: JOAO PEREIRA\nCPF: 123.456.789-00\nnão constam pendências"

	v := rules.Classify(text, FamilyRevenue)
	assert.False(t, v.Pendency)
	assert.Equal(t, "JOAO PEREIRA", v.HolderName)

	v = rules.Classify("NÃO CONSTAM", FamilyRevenue)
	assert.True(t, v.Pendency)
}

func TestNadaConstaFamily(t *testing.T) {
	rules := DefaultRules()
	text := "CERTIDÃO ESPECIAL\nCPF/CNPJ de:\n  ANA SOUZA  \nnada consta contra o requerente"

	v := rules.Classify(text, FamilyNadaConsta)
	assert.False(t, v.Pendency)
	assert.Equal(t, "ANA SOUZA", v.HolderName)

	v = rules.Classify("CERTIDÃO POSITIVA\nconsta ação", FamilyNadaConsta)
	assert.True(t, v.Pendency)
	assert.Empty(t, v.HolderName)
}

func TestUnknownFamilyReportsPendency(t *testing.T) {
	v := DefaultRules().Classify("NÃO CONSTAM", Family("other"))
	assert.True(t, v.Pendency)
	assert.Empty(t, v.HolderName)
}

func TestRulesAreSwappable(t *testing.T) {
	rules := Rules{FamilyCourt: {Marker: "NEGATIVA"}}
	assert.False(t, rules.Classify("CERTIDAO NEGATIVA", FamilyCourt).Pendency)
	assert.True(t, rules.Classify("NÃO CONSTAM", FamilyCourt).Pendency)
}

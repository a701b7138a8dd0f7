package domain_test

import (
	"testing"

	"github.com/farmabase/farmabase-backend/internal/stock/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		subtype domain.MovementSubtype
		class   domain.MovementClass
	}{
		{domain.SubtypeCompra, domain.ClassInflow},
		{domain.SubtypeDoacao, domain.ClassInflow},
		{domain.SubtypeTransferenciaIn, domain.ClassInflow},
		{domain.SubtypeAjusteEntrada, domain.ClassInflow},
		{domain.SubtypePerda, domain.ClassLoss},
		{domain.SubtypeVencimento, domain.ClassLoss},
		{domain.SubtypeAvaria, domain.ClassLoss},
		{domain.SubtypeTransferenciaOut, domain.ClassOutflow},
		{domain.SubtypeAjusteSaida, domain.ClassOutflow},
		{domain.SubtypeDispensacao, domain.ClassOutflow},
	}

	for _, tt := range tests {
		t.Run(string(tt.subtype), func(t *testing.T) {
			assert.Equal(t, tt.class, domain.Classify(tt.subtype))
		})
	}
}

func TestClassify_UnknownSubtypeIsOutflow(t *testing.T) {
	assert.Equal(t, domain.ClassOutflow, domain.Classify(domain.MovementSubtype("SOMETHING_ELSE")))
	assert.Equal(t, domain.ClassOutflow, domain.Classify(domain.MovementSubtype("")))
}

func TestIsEntrada(t *testing.T) {
	assert.True(t, domain.SubtypeCompra.IsEntrada())
	assert.True(t, domain.SubtypeDoacao.IsEntrada())
	assert.False(t, domain.SubtypePerda.IsEntrada())
	assert.False(t, domain.SubtypeDispensacao.IsEntrada())
}

func TestValidSubtypes_CoversClassificationTable(t *testing.T) {
	subtypes := domain.ValidSubtypes()
	assert.Len(t, subtypes, 10)

	seen := make(map[domain.MovementSubtype]bool)
	for _, s := range subtypes {
		seen[s] = true
	}
	assert.True(t, seen[domain.SubtypeCompra])
	assert.True(t, seen[domain.SubtypeVencimento])
	assert.True(t, seen[domain.SubtypeDispensacao])
}

package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/puer99miss/Xapiand/internal/fieldtype"
)

func TestTextAnalyzer_StopStrategyNoneWinsOverLanguage(t *testing.T) {
	assert.Equal(t, noStopAnalyzer, textAnalyzer("es", "none"))
	assert.Equal(t, noStopAnalyzer, textAnalyzer("", "stop_none"))
}

func TestTextAnalyzer_KnownLanguageSelectsItsAnalyzer(t *testing.T) {
	assert.Equal(t, "es", textAnalyzer("es", ""))
	assert.Equal(t, "ru", textAnalyzer("ru", "default"))
}

func TestTextAnalyzer_UnknownOrUnsetLanguageFallsBackToStandard(t *testing.T) {
	assert.Equal(t, "standard", textAnalyzer("", ""))
	assert.Equal(t, "standard", textAnalyzer("klingon", ""))
}

func TestFieldMapping_TextFieldCarriesResolvedAnalyzer(t *testing.T) {
	fm := FieldMapping(fieldtype.Text, false, true, "fr", "")
	assert.Equal(t, "fr", fm.Analyzer)
	assert.True(t, fm.Store)
}

func TestFieldMapping_NonTextFieldIgnoresLanguageSettings(t *testing.T) {
	fm := FieldMapping(fieldtype.Integer, false, true, "fr", "none")
	assert.Empty(t, fm.Analyzer)
}

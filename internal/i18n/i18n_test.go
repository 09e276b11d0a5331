package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslations(t *testing.T) {
	require.NoError(t, Initialize("en"))

	assert.Equal(t, "Authentication required", T("en", KeyAuthRequired))
	assert.Equal(t, "Требуется авторизация", T("ru", KeyAuthRequired))
	assert.Equal(t, "Invalid request", T("en", KeyValidationInvalid, "request"))
	assert.Equal(t, "Authentication required", T("de", KeyAuthRequired), "unknown language falls back")
	assert.Equal(t, "no.such.key", T("en", "no.such.key"))
	assert.ElementsMatch(t, []string{"en", "ru"}, GetSupportedLanguages())
}

func TestLocalesDefineSameKeys(t *testing.T) {
	require.NoError(t, Initialize("en"))

	en := instance.translations["en"]
	ru := instance.translations["ru"]
	for key := range en {
		assert.Contains(t, ru, key)
	}
	assert.Len(t, ru, len(en))
}

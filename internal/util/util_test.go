package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHMAC(t *testing.T) {
	token := HMACSHA256Hex("secret", "export:users")
	assert.Len(t, token, 64)
	assert.True(t, VerifyHMAC("secret", "export:users", token))
	assert.False(t, VerifyHMAC("secret", "export:teams", token))
	assert.False(t, VerifyHMAC("other", "export:users", token))
	assert.False(t, VerifyHMAC("secret", "export:users", "not-hex"))
}

func TestFormat(t *testing.T) {
	tashkent := time.FixedZone("UZT", 5*3600)
	at := time.Date(2026, 5, 2, 13, 0, 0, 0, time.UTC)
	assert.Equal(t, "02.05.2026 18:00", FormatDateTime(at, tashkent))
	assert.Equal(t, "02.05.2026", FormatDate(&at))
	assert.Equal(t, "-", FormatDate(nil))
	assert.Equal(t, "2026-05-02T13:00:00Z", ISO(&at))
	assert.Empty(t, ISO(nil))
}

package capture

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mutuals/pkg/domain"
	dErrors "mutuals/pkg/domain-errors"
)

const twoAvatarsHAR = `{
  "log": {
    "entries": [
      {"request": {"url": "https://cdn.discordapp.com/avatars/222/abc.webp?size=80", "headers": []}},
      {"request": {"url": "https://discord.com/api/v9/users/@me", "headers": [
        {"name": "Authorization", "value": "secret-token"}
      ]}},
      {"request": {"url": "https://cdn.discordapp.com/avatars/111/def.png", "headers": []}},
      {"request": {"url": "https://example.com/avatars/999", "headers": []}}
    ]
  }
}`

func TestExtract_Identifiers(t *testing.T) {
	e := New()

	t.Run("matches avatar urls and skips others", func(t *testing.T) {
		res, err := e.Extract(strings.NewReader(twoAvatarsHAR))
		require.NoError(t, err)
		assert.Equal(t, []domain.UserID{"111", "222"}, res.Identifiers)
		assert.Equal(t, "secret-token", res.Credential)
		assert.Equal(t, 4, res.Entries)
	})

	t.Run("matches per-group avatar urls and dedupes", func(t *testing.T) {
		har := `{"log": {"entries": [
		  {"request": {"url": "https://cdn.discordapp.com/guilds/5/users/333/avatars/x.png", "headers": [{"name": "authorization", "value": "t"}]}},
		  {"request": {"url": "https://cdn.discordapp.com/avatars/333/y.png", "headers": []}},
		  {"request": {"url": "https://cdn.discordapp.com/guilds/6/users/44/avatars/z.png", "headers": []}}
		]}}`
		res, err := e.Extract(strings.NewReader(har))
		require.NoError(t, err)
		assert.Equal(t, []domain.UserID{"44", "333"}, res.Identifiers)
	})

	t.Run("pattern must anchor at start of url", func(t *testing.T) {
		har := `{"log": {"entries": [
		  {"request": {"url": "https://proxy.test/?u=https://cdn.discordapp.com/avatars/12/a", "headers": [{"name": "Authorization", "value": "t"}]}}
		]}}`
		res, err := e.Extract(strings.NewReader(har))
		require.NoError(t, err)
		assert.Empty(t, res.Identifiers)
	})

	t.Run("custom patterns replace defaults", func(t *testing.T) {
		custom := New(WithPatterns(regexp.MustCompile(`^https://example\.com/avatars/(\d+)`)))
		res, err := custom.Extract(strings.NewReader(twoAvatarsHAR))
		require.NoError(t, err)
		assert.Equal(t, []domain.UserID{"999"}, res.Identifiers)
	})
}

func TestExtract_Errors(t *testing.T) {
	e := New()

	t.Run("malformed json is a log parse error", func(t *testing.T) {
		_, err := e.Extract(strings.NewReader(`{"log": [`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLogParse))
	})

	t.Run("missing log section is a log parse error", func(t *testing.T) {
		_, err := e.Extract(strings.NewReader(`{"entries": []}`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLogParse))
	})

	t.Run("trailing garbage is a log parse error", func(t *testing.T) {
		_, err := e.Extract(strings.NewReader(twoAvatarsHAR + `garbage`))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLogParse))
	})

	t.Run("concatenated documents are a log parse error", func(t *testing.T) {
		_, err := e.Extract(strings.NewReader(twoAvatarsHAR + "\n" + twoAvatarsHAR))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeLogParse))
	})

	t.Run("trailing whitespace is accepted", func(t *testing.T) {
		res, err := e.Extract(strings.NewReader(twoAvatarsHAR + "\n\t \n"))
		require.NoError(t, err)
		assert.Len(t, res.Identifiers, 2)
	})

	t.Run("no authorization header", func(t *testing.T) {
		har := `{"log": {"entries": [
		  {"request": {"url": "https://cdn.discordapp.com/avatars/1/a", "headers": [{"name": "Authorization", "value": ""}]}}
		]}}`
		_, err := e.Extract(strings.NewReader(har))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeCredentialNotFound))
	})

	t.Run("first credential wins", func(t *testing.T) {
		har := `{"log": {"entries": [
		  {"request": {"url": "a", "headers": [{"name": "Authorization", "value": "first"}]}},
		  {"request": {"url": "b", "headers": [{"name": "Authorization", "value": "second"}]}}
		]}}`
		res, err := e.Extract(strings.NewReader(har))
		require.NoError(t, err)
		assert.Equal(t, "first", res.Credential)
	})
}

func TestLoadFile(t *testing.T) {
	e := New()

	t.Run("reads capture from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "requests.har")
		require.NoError(t, os.WriteFile(path, []byte(twoAvatarsHAR), 0o600))

		res, err := e.LoadFile(path)
		require.NoError(t, err)
		assert.Len(t, res.Identifiers, 2)
	})

	t.Run("missing file is invalid input", func(t *testing.T) {
		_, err := e.LoadFile(filepath.Join(t.TempDir(), "absent.har"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestResult_CredentialFingerprint(t *testing.T) {
	a := &Result{Credential: "secret-token"}
	b := &Result{Credential: "other-token"}

	assert.Len(t, a.CredentialFingerprint(), 12)
	assert.Equal(t, a.CredentialFingerprint(), (&Result{Credential: "secret-token"}).CredentialFingerprint())
	assert.NotEqual(t, a.CredentialFingerprint(), b.CredentialFingerprint())
	assert.NotContains(t, a.CredentialFingerprint(), "secret")
	assert.Empty(t, (&Result{}).CredentialFingerprint())
}

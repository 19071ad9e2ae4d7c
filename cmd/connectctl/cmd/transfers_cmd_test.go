package cmd

import (
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"

	"github.com/lyzr/connected/common/models"
)

func TestSummary(t *testing.T) {
	text := &models.Transfer{Kind: models.KindText, Content: lo.ToPtr("hello\n  world")}
	assert.Equal(t, "hello world", summary(text))

	long := &models.Transfer{Kind: models.KindCode, Content: lo.ToPtr(strings.Repeat("x", 100))}
	assert.Len(t, summary(long), 48)
	assert.True(t, strings.HasSuffix(summary(long), "..."))

	file := &models.Transfer{Kind: models.KindFile, FileName: lo.ToPtr("a.zip"), FileSize: lo.ToPtr(int64(2048))}
	assert.Contains(t, summary(file), "a.zip")
}

func TestClientConfig_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("CONNECTED_URL", "http://env:8080")
	t.Setenv("CONNECTED_USER", "env-user")

	cfg := clientConfig()
	assert.Equal(t, "http://env:8080", cfg.BaseURL)
	assert.Equal(t, "env-user", cfg.UserID)

	flagURL, flagUser = "http://flag:9090/", "flag-user"
	t.Cleanup(func() { flagURL, flagUser = "", "" })

	cfg = clientConfig()
	assert.Equal(t, "http://flag:9090", cfg.BaseURL)
	assert.Equal(t, "flag-user", cfg.UserID)
}

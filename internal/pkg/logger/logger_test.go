package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "***", RedactSecret("abc"))
	assert.Equal(t, "s3***ey", RedactSecret("s3cr3tkey"))
}

func TestLooksLikeSecret(t *testing.T) {
	assert.True(t, looksLikeSecret("db_password"))
	assert.True(t, looksLikeSecret("AWS_ACCESS_KEY"))
	assert.True(t, looksLikeSecret("api_key"))
	assert.False(t, looksLikeSecret("table_name"))
	assert.False(t, looksLikeSecret("batch_index"))
}

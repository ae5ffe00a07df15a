package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)
	log.Info().Str("batch", "b1").Msg("preview")
	assert.Contains(t, buf.String(), `"batch":"b1"`)
	assert.Contains(t, buf.String(), "preview")
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))
	log := FromContext(ctx)
	log.Info().Msg("test")
	assert.NotZero(t, buf.Len())
}

func TestFromContextDefaultIsDisabled(t *testing.T) {
	log := FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, log.GetLevel())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.ErrorLevel, New("error").GetLevel())
}

func TestWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := WithFields(NewWithWriter(buf), map[string]interface{}{"session": "s1", "files": 2})
	log.Info().Msg("commit")
	assert.Contains(t, buf.String(), `"session":"s1"`)
	assert.Contains(t, buf.String(), `"files":2`)
}

func TestNewConsole(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewConsole(buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Str("file", "a.csv").Msg("file skipped")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "file skipped")
	assert.Contains(t, buf.String(), "file=a.csv")
}

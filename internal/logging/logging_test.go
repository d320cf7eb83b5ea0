package logging_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/go-storefront/internal/logging"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, logging.ParseLevel("DEBUG"))
	require.Equal(t, zerolog.WarnLevel, logging.ParseLevel(" warn "))
	require.Equal(t, zerolog.InfoLevel, logging.ParseLevel("chatty"))
	require.Equal(t, zerolog.InfoLevel, logging.ParseLevel(""))
}

func TestSetup_JSONOutsideDev(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	var buf bytes.Buffer
	logger := logging.Setup("info", "PROD", &buf)
	logger.Info().Str("component", "cart").Msg("loaded")

	require.Contains(t, buf.String(), `"component":"cart"`)
	require.Contains(t, buf.String(), `"message":"loaded"`)
}

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	logger, err := New("debug", "json")
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.WithFields(logrus.Fields{"correlation_id": "abc", "op": "inbound"}).Info("mutation applied")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc", line["correlation_id"])
	assert.Equal(t, "inbound", line["op"])
	assert.Equal(t, "mutation applied", line["msg"])
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", "text")
	assert.Error(t, err)

	_, err = New("info", "xml")
	assert.ErrorContains(t, err, "want text or json")
}

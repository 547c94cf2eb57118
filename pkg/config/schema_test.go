package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema(t *testing.T) {
	data, err := SchemaJSON()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, "Lockstep Configuration", schema["title"])
	assert.NotContains(t, schema, "required")

	props := schema["properties"].(map[string]any)
	coord := props["coordinator"].(map[string]any)
	coordProps := coord["properties"].(map[string]any)
	poll := coordProps["poll_interval"].(map[string]any)
	assert.Len(t, poll["oneOf"], 2)
}

func TestValidateFile(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		path := writeConfig(t, `
logging:
  level: DEBUG
coordinator:
  port: 5000
  poll_interval: 500ms
  max_send_delay: 250
api:
  enabled: false
`)
		assert.NoError(t, ValidateFile(path))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.NoError(t, ValidateFile(writeConfig(t, "")))
	})

	t.Run("UnknownKey", func(t *testing.T) {
		path := writeConfig(t, `
coordinator:
  prot: 5000
`)
		err := ValidateFile(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSchemaViolation)
	})

	t.Run("WrongType", func(t *testing.T) {
		path := writeConfig(t, `
coordinator:
  port: five
`)
		assert.ErrorIs(t, ValidateFile(path), ErrSchemaViolation)
	})

	t.Run("Missing", func(t *testing.T) {
		err := ValidateFile(t.TempDir() + "/missing.yaml")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSchemaViolation)
	})
}

func TestDigest(t *testing.T) {
	a := GetDefaultConfig()
	b := GetDefaultConfig()

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.Len(t, da, 64)
	assert.Equal(t, da, db)

	b.Coordinator.Port = 5001
	db, err = Digest(b)
	require.NoError(t, err)
	assert.NotEqual(t, da, db)
}

func TestDigestIgnoresFileLayout(t *testing.T) {
	first := writeConfig(t, "coordinator:\n  port: 5000\n  queue_capacity: 4\n")
	second := writeConfig(t, "coordinator:\n  queue_capacity: 4\n  port: 5000\n")

	c1, err := Load(first)
	require.NoError(t, err)
	c2, err := Load(second)
	require.NoError(t, err)

	d1, err := Digest(c1)
	require.NoError(t, err)
	d2, err := Digest(c2)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

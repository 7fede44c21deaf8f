package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDescriptorsYAMLParsesDefaultsAndParams(t *testing.T) {
	data := []byte(`
- type: postgres
  description: PostgreSQL source/destination
  required_params: [host, database]
  optional_params: [schema]
  defaults:
    port: 5432

- type: csv
  required_params: [path]
`)

	descriptors, err := LoadDescriptorsYAML(data)
	require.NoError(t, err)
	require.Len(t, descriptors, 2)

	pg := descriptors[0]
	assert.Equal(t, "postgres", pg.Type)
	assert.Equal(t, "PostgreSQL source/destination", pg.Description)
	assert.Equal(t, []string{"host", "database"}, pg.RequiredParams)
	assert.Equal(t, []string{"schema"}, pg.OptionalParams)
	assert.Equal(t, 5432, pg.Defaults["port"])

	csv := descriptors[1]
	assert.Equal(t, "csv", csv.Type)
	assert.Equal(t, []string{"path"}, csv.RequiredParams)
}

func TestLoadDescriptorsYAMLRejectsMissingType(t *testing.T) {
	_, err := LoadDescriptorsYAML([]byte(`- description: no type here`))
	assert.Error(t, err)
}

func TestLoadDescriptorsYAMLRejectsInvalidYAML(t *testing.T) {
	_, err := LoadDescriptorsYAML([]byte("not: [valid"))
	assert.Error(t, err)
}

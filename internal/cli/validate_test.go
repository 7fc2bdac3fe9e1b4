package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/loadsim/internal/config"
)

func TestValidateConfig(t *testing.T) {
	var out bytes.Buffer
	path := writeConfig(t, runConfig)

	require.NoError(t, validateConfig(path, true, &out))
	assert.Equal(t, "✓ "+path+": 1 templates, 1 workloads\n", out.String())
}

func TestValidateConfig_UnknownTemplateWarns(t *testing.T) {
	var out bytes.Buffer
	path := writeConfig(t, runConfig+`
  - name: orphan
    template: ghost
    op: find
`)

	require.NoError(t, validateConfig(path, true, &out))
	assert.Contains(t, out.String(), "⚠ unknown template: orphan -> ghost")
	assert.Contains(t, out.String(), "2 workloads")
}

func TestValidateConfig_Invalid(t *testing.T) {
	path := writeConfig(t, `
templates:
  - name: person
    database: test
    collection: people
    template: { a: 1 }
workloads:
  - name: w
    template: person
    op: find
    batch: -2
`)

	err := validateConfig(path, true, &bytes.Buffer{})
	require.Error(t, err)
	var verrs *config.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Contains(t, err.Error(), "workloads[0].batch")
}

func TestValidateCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"validate", "--no-color", "-c", writeConfig(t, runConfig)})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "1 templates, 1 workloads")
}

func TestValidateConfig_MissingFile(t *testing.T) {
	err := validateConfig("does-not-exist.yaml", true, &bytes.Buffer{})
	assert.Error(t, err)
}

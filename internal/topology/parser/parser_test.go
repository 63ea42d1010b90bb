package parser

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/topogate/internal/errors"
)

const clusterXML = `<topology>
  <gateway>
    <provider>
      <role>authentication</role>
      <name>ShiroProvider</name>
      <enabled>true</enabled>
      <param><name>main.ldapRealm.contextFactory.url</name><value>ldap://localhost:33389</value></param>
      <param><name>main.ldapRealm.contextFactory.systemPassword</name><value>${ALIAS=ldap-password}</value></param>
    </provider>
    <provider>
      <role>identity-assertion</role>
      <name>Default</name>
      <enabled>false</enabled>
    </provider>
    <provider/>
  </gateway>
  <service>
    <role>test-service-role</role>
    <url>http://localhost:9000</url>
    <param><name>path</name><value>test-service-path</value></param>
  </service>
</topology>`

const clusterYAML = `providers:
  - role: authentication
    name: ShiroProvider
    params:
      - name: main.ldapRealm.contextFactory.url
        value: ldap://localhost:33389
services:
  - role: WEBHDFS
    url: https://namenode:50070/webhdfs
`

func TestDescriptor(t *testing.T) {
	tests := []struct {
		file   string
		name   string
		format Format
		ok     bool
	}{
		{"test-cluster.xml", "test-cluster", FormatXML, true},
		{"/a/b/sandbox.yaml", "sandbox", FormatYAML, true},
		{"sandbox.YML", "sandbox", FormatYAML, true},
		{"test-cluster.xml.3f2a9c", "", "", false},
		{".test-cluster.xml", "", "", false},
		{"README.md", "", "", false},
		{".xml", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			name, format, ok := Descriptor(tt.file)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.format, format)
		})
	}
}

func TestParse_XML(t *testing.T) {
	topology, err := Parse("test-cluster", FormatXML, []byte(clusterXML))
	require.NoError(t, err)

	assert.Equal(t, "test-cluster", topology.Name)
	assert.Equal(t, Checksum([]byte(clusterXML)), topology.Checksum)

	require.Len(t, topology.Providers, 2)
	shiro := topology.Providers[0]
	assert.Equal(t, "authentication", shiro.Role)
	assert.Equal(t, "ShiroProvider", shiro.Name)
	assert.True(t, shiro.Enabled)
	require.Len(t, shiro.Params, 2)
	assert.Equal(t, "main.ldapRealm.contextFactory.url", shiro.Params[0].Name)
	assert.Equal(t, "${ALIAS=ldap-password}", shiro.Params[1].Value)
	assert.False(t, topology.Providers[1].Enabled)
	assert.Len(t, topology.EnabledProviders(), 1)

	require.Len(t, topology.Services, 1)
	route := topology.Services[0]
	assert.Equal(t, "test-service-role", route.Role)
	assert.Equal(t, "http://localhost:9000", route.URL)
	assert.Equal(t, "/test-service-path", route.Path())
}

func TestParse_YAML(t *testing.T) {
	topology, err := Parse("sandbox", FormatYAML, []byte(clusterYAML))
	require.NoError(t, err)

	require.Len(t, topology.Providers, 1)
	assert.True(t, topology.Providers[0].Enabled)
	assert.Equal(t, "ldap://localhost:33389", topology.Providers[0].Params[0].Value)

	require.Len(t, topology.Services, 1)
	assert.Equal(t, "/webhdfs", topology.Services[0].Path())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		topology string
		format   Format
		data     string
	}{
		{"malformed xml", "c", FormatXML, "<topology><gateway>"},
		{"wrong root", "c", FormatXML, "<cluster></cluster>"},
		{"malformed yaml", "c", FormatYAML, "providers: [:"},
		{"unknown yaml field", "c", FormatYAML, "routes: []"},
		{"provider without role", "c", FormatXML,
			"<topology><gateway><provider><name>x</name></provider></gateway></topology>"},
		{"service without role", "c", FormatXML,
			"<topology><service><url>http://localhost</url></service></topology>"},
		{"relative url", "c", FormatXML,
			"<topology><service><role>r</role><url>localhost:80/x</url></service></topology>"},
		{"invalid enabled", "c", FormatXML,
			"<topology><gateway><provider><role>r</role><enabled>maybe</enabled></provider></gateway></topology>"},
		{"invalid name", "test.cluster", FormatXML, "<topology></topology>"},
		{"unknown format", "c", Format("json"), "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.topology, tt.format, []byte(tt.data))
			assert.ErrorIs(t, err, errors.ErrParse)
		})
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test-cluster.xml")
	require.NoError(t, os.WriteFile(path, []byte(clusterXML), 0o600))

	mtime := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	topology, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "test-cluster", topology.Name)
	assert.Equal(t, path, topology.Source)
	assert.True(t, topology.Timestamp.Equal(mtime))

	t.Run("missing file", func(t *testing.T) {
		_, err := ParseFile(filepath.Join(dir, "missing.xml"))
		assert.ErrorIs(t, err, errors.ErrIO)
	})

	t.Run("not a descriptor", func(t *testing.T) {
		_, err := ParseFile(filepath.Join(dir, "notes.txt"))
		assert.ErrorIs(t, err, errors.ErrParse)
	})
}

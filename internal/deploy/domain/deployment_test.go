package domain

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDirName(t *testing.T) {
	tests := []struct {
		dir      string
		topology string
		token    string
		ok       bool
	}{
		{"test-cluster.0192f0c4a1b27c3d8e4f5a6b7c8d9e0f", "test-cluster", "0192f0c4a1b27c3d8e4f5a6b7c8d9e0f", true},
		{"test-cluster.war.0192f0c4a1b27c3d8e4f5a6b7c8d9e0f", "test-cluster.war", "0192f0c4a1b27c3d8e4f5a6b7c8d9e0f", true},
		{"test-cluster.0192f0c4", "", "", false},
		{"test-cluster.zz92f0c4a1b27c3d8e4f5a6b7c8d9e0f", "", "", false},
		{".0192f0c4a1b27c3d8e4f5a6b7c8d9e0f", "", "", false},
		{"test-cluster", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			topology, token, ok := ParseDirName(tt.dir)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.topology, topology)
			assert.Equal(t, tt.token, token)
		})
	}
}

func TestVersion_Paths(t *testing.T) {
	v := &Version{Topology: "sandbox", Token: "0192f0c4a1b27c3d8e4f5a6b7c8d9e0f", Dir: "/data/sandbox.0192f0c4a1b27c3d8e4f5a6b7c8d9e0f"}

	assert.Equal(t, "sandbox.0192f0c4a1b27c3d8e4f5a6b7c8d9e0f", v.ID())
	assert.Equal(t, filepath.Join(v.Dir, "WEB-INF", "routes.json"), v.ArtifactPath(RoutesFile))
	assert.Equal(t, ".sandbox.0192f0c4a1b27c3d8e4f5a6b7c8d9e0f.staging", StagingDirName(v.Topology, v.Token))
}

func TestParam_Encrypted(t *testing.T) {
	assert.True(t, Param{Value: "enc:AAAA"}.Encrypted())
	assert.False(t, Param{Value: "ldap://localhost"}.Encrypted())
}

func TestStatus_JSON(t *testing.T) {
	status := Status{Name: "sandbox", State: Failed, LastError: "boom", UpdatedAt: time.Unix(0, 0).UTC()}

	data, err := json.Marshal(status)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"state":"failed"`)
	assert.NotContains(t, string(data), `"active"`)
	assert.Equal(t, "unknown", State(42).String())
}

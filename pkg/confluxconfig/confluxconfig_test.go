package confluxconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadBootstrapNode(t *testing.T) {
	path := writeConfig(t, `
apiVersion: conflux/v1
kind: Node
nodeId: 1
bindAddr: 127.0.0.1:9001
dataDir: /tmp/conflux-1
bootstrap: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.NodeID)
	assert.True(t, cfg.Bootstrap)
	assert.Equal(t, DefaultTimeouts(), cfg.Timeouts)
}

func TestLoadJoiningNode(t *testing.T) {
	path := writeConfig(t, `
apiVersion: conflux/v1
kind: Node
nodeId: 2
bindAddr: 127.0.0.1:9002
dataDir: /tmp/conflux-2
joinAddr: 127.0.0.1:9001
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9001", cfg.JoinAddr)
}

func TestLoadRejectsBootstrapAndJoinTogether(t *testing.T) {
	path := writeConfig(t, `
apiVersion: conflux/v1
kind: Node
nodeId: 1
bindAddr: 127.0.0.1:9001
dataDir: /tmp/conflux-1
bootstrap: true
joinAddr: 127.0.0.1:9002
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNeitherBootstrapNorJoinNorPeers(t *testing.T) {
	path := writeConfig(t, `
apiVersion: conflux/v1
kind: Node
nodeId: 1
bindAddr: 127.0.0.1:9001
dataDir: /tmp/conflux-1
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `
apiVersion: conflux/v1
kind: Node
bindAddr: 127.0.0.1:9001
dataDir: /tmp/conflux-1
bootstrap: true
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadAddress(t *testing.T) {
	path := writeConfig(t, `
apiVersion: conflux/v1
kind: Node
nodeId: 1
bindAddr: not-an-address
dataDir: /tmp/conflux-1
bootstrap: true
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsDuplicatePeers(t *testing.T) {
	path := writeConfig(t, `
apiVersion: conflux/v1
kind: Node
nodeId: 1
bindAddr: 127.0.0.1:9001
dataDir: /tmp/conflux-1
bootstrap: true
peers:
  - nodeId: 2
    address: 127.0.0.1:9002
  - nodeId: 2
    address: 127.0.0.1:9003
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := &Config{
		APIVersion: "conflux/v1",
		Kind:       "Node",
		NodeID:     1,
		BindAddr:   "127.0.0.1:9001",
		DataDir:    "/tmp/conflux-1",
		Bootstrap:  true,
		Timeouts:   DefaultTimeouts(),
		LogLevel:   "verbose",
	}
	assert.Error(t, Validate(cfg))
}

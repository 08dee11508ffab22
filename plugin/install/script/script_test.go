package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/renewkit/acme"
)

func TestPlugin_Install_NoScriptPathIsNoop(t *testing.T) {
	p := &Plugin{renewal: acme.ScheduledRenewal{}}
	err := p.Install(context.Background(), &acme.CertRecord{}, nil)
	require.NoError(t, err)
}

func TestPlugin_Install_RunsScriptWithCertAndKeyPaths(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")
	script := filepath.Join(dir, "hook.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
cat "$1" > `+outPath+`.cert
cat "$2" > `+outPath+`.key
echo "$3" > `+outPath+`.arg
`), 0o755))

	p := &Plugin{renewal: acme.ScheduledRenewal{ScriptPath: script, ScriptParameters: []string{"renewed"}}}
	cert := &acme.CertRecord{CertificateChain: []byte("CHAIN-BYTES"), PrivateKey: []byte("KEY-BYTES")}

	err := p.Install(context.Background(), cert, nil)
	require.NoError(t, err)

	gotCert, err := os.ReadFile(outPath + ".cert")
	require.NoError(t, err)
	require.Equal(t, "CHAIN-BYTES", string(gotCert))

	gotKey, err := os.ReadFile(outPath + ".key")
	require.NoError(t, err)
	require.Equal(t, "KEY-BYTES", string(gotKey))

	gotArg, err := os.ReadFile(outPath + ".arg")
	require.NoError(t, err)
	require.Equal(t, "renewed\n", string(gotArg))
}

func TestPlugin_Install_ScriptFailureSurfacesStderr(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fail.sh")
	require.NoError(t, os.WriteFile(script, []byte(`#!/bin/sh
echo "boom" >&2
exit 1
`), 0o755))

	p := &Plugin{renewal: acme.ScheduledRenewal{ScriptPath: script}}
	err := p.Install(context.Background(), &acme.CertRecord{}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

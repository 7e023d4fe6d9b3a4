package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/contractsim/blockchain/module"
)

// emptyWasm is a valid module without imports or exports.
var emptyWasm = []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}

func Test_Inspect(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "empty.wasm")
	versioned := filepath.Join(dir, "empty.wasm.v1")
	require.NoError(t, os.WriteFile(raw, emptyWasm, 0o644))
	require.NoError(t, os.WriteFile(versioned, module.NewV1(emptyWasm).Bytes(), 0o644))

	ref := module.NewV1(emptyWasm).Ref().String()

	var out bytes.Buffer
	require.NoError(t, newApp(&out).Run([]string{"contractsim", "inspect", "--module", raw, "--raw"}))
	require.Contains(t, out.String(), "version:   V1")
	require.Contains(t, out.String(), "reference: "+ref)

	out.Reset()
	require.NoError(t, newApp(&out).Run([]string{"contractsim", "inspect", "--module", versioned}))
	require.Contains(t, out.String(), "size:      8")

	require.Error(t, newApp(&out).Run([]string{"contractsim", "inspect", "--module", raw}))
}

func Test_Run_Requires_Scenario(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, newApp(&out).Run([]string{"contractsim", "run"}))
	require.Error(t, newApp(&out).Run([]string{"contractsim", "run", "--scenario", "/does/not/exist.yaml"}))
}

func Test_Log_Level(t *testing.T) {
	var out bytes.Buffer
	require.Error(t, newApp(&out).Run([]string{"contractsim", "--log-level", "loud", "run"}))
}

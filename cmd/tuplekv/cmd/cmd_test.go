package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes the root command with the given args and returns its
// combined output. Command state is global, so flags are reset first.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags() {
	flagDB, flagBackend, flagConfig, flagVerbose = "", "", "", false
	cfg = DefaultConfig()
	setHex = false
	listReverse, listLimit = false, 0
	dirLayerTag, dirPrefixHex = "", ""
}

func TestEncodeDecode(t *testing.T) {
	out, err := runCmd(t, "encode", `["users", 42]`)
	require.NoError(t, err)
	require.Equal(t, "02757365727300152a\n", out)

	out, err = runCmd(t, "decode", "02757365727300152a")
	require.NoError(t, err)
	require.Equal(t, "(\"users\", 42)\n", out)

	out, err = runCmd(t, "decode", "0x02 75 73 65 72 73 00 15 2a")
	require.NoError(t, err)
	require.Equal(t, "(\"users\", 42)\n", out)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, src := range []string{
		`["a", [1, true], null, 3.5]`,
		`[-42, 12345678901234567890]`,
		`[""]`,
	} {
		hexOut, err := runCmd(t, "encode", src)
		require.NoError(t, err, "encode %s", src)
		_, err = runCmd(t, "decode", strings.TrimSpace(hexOut))
		require.NoError(t, err, "decode %s", src)
	}
}

func TestEncodeDecodeErrors(t *testing.T) {
	_, err := runCmd(t, "encode", `not json`)
	require.Error(t, err)
	_, err = runCmd(t, "encode", `"a string"`)
	require.Error(t, err)
	_, err = runCmd(t, "encode", `[{"k": 1}]`)
	require.Error(t, err)
	_, err = runCmd(t, "decode", "zz")
	require.Error(t, err)
	_, err = runCmd(t, "decode", "15")
	require.Error(t, err, "truncated int")
}

func TestKVCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")

	_, err := runCmd(t, "--db", db, "set", `["users", 42]`, "alice")
	require.NoError(t, err)

	out, err := runCmd(t, "--db", db, "get", `["users", 42]`)
	require.NoError(t, err)
	assert.Equal(t, "\"alice\"\n", out)

	_, err = runCmd(t, "--db", db, "get", `["users", 43]`)
	require.Error(t, err)

	_, err = runCmd(t, "--db", db, "set", "--hex", `["raw"]`, "0001")
	require.NoError(t, err)
	out, err = runCmd(t, "--db", db, "get", `["raw"]`)
	require.NoError(t, err)
	assert.Equal(t, "0x0001\n", out)

	_, err = runCmd(t, "--db", db, "del", `["raw"]`)
	require.NoError(t, err)
	_, err = runCmd(t, "--db", db, "get", `["raw"]`)
	require.Error(t, err)
}

func TestListCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	for _, kv := range [][2]string{
		{`["users", 1]`, "alice"},
		{`["users", 2]`, "bob"},
		{`["groups", 1]`, "admins"},
	} {
		_, err := runCmd(t, "--db", db, "set", kv[0], kv[1])
		require.NoError(t, err)
	}

	out, err := runCmd(t, "--db", db, "list")
	require.NoError(t, err)
	assert.Equal(t, []string{
		`("groups", 1) = "admins"`,
		`("users", 1) = "alice"`,
		`("users", 2) = "bob"`,
	}, strings.Split(strings.TrimSpace(out), "\n"))

	out, err = runCmd(t, "--db", db, "list", `["users"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`("users", 1) = "alice"`,
		`("users", 2) = "bob"`,
	}, strings.Split(strings.TrimSpace(out), "\n"))

	out, err = runCmd(t, "--db", db, "list", "--reverse", "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, `("users", 2) = "bob"`, strings.TrimSpace(out))
}

func TestDirCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")

	out, err := runCmd(t, "--db", db, "dir", "mk", "app/users", "--layer", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "created app/users at prefix ")

	out, err = runCmd(t, "--db", db, "dir", "ls", "app")
	require.NoError(t, err)
	assert.Equal(t, "users\n", out)

	_, err = runCmd(t, "--db", db, "dir", "mv", "app/users", "app/members")
	require.NoError(t, err)
	out, err = runCmd(t, "--db", db, "dir", "ls", "app")
	require.NoError(t, err)
	assert.Equal(t, "members\n", out)

	_, err = runCmd(t, "--db", db, "dir", "rm", "app/members")
	require.NoError(t, err)
	_, err = runCmd(t, "--db", db, "dir", "rm", "app/members")
	require.Error(t, err, "removing a missing directory fails")

	out, err = runCmd(t, "--db", db, "dir", "ls", "app")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = runCmd(t, "--db", db, "dir", "mk", "manual", "--prefix", "6d3a")
	require.NoError(t, err)
	assert.Contains(t, out, "at prefix 6d3a")
}

func TestDumpRestore(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	snap := filepath.Join(dir, "snap.tkv")

	_, err := runCmd(t, "--db", src, "set", `["k"]`, "v")
	require.NoError(t, err)

	out, err := runCmd(t, "--db", src, "dump", snap)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 2 records")

	out, err = runCmd(t, "--db", dst, "restore", snap)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 2 records")

	out, err = runCmd(t, "--db", dst, "get", `["k"]`)
	require.NoError(t, err)
	assert.Equal(t, "\"v\"\n", out)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	configPath := filepath.Join(dir, "config.yaml")

	require.NoError(t, os.WriteFile(configPath, []byte("db: "+db+"\n"), 0644))

	_, err := runCmd(t, "--config", configPath, "set", `["k"]`, "v")
	require.NoError(t, err)

	out, err := runCmd(t, "--config", configPath, "get", `["k"]`)
	require.NoError(t, err)
	assert.Equal(t, "\"v\"\n", out)

	// Flags override the config file.
	other := filepath.Join(dir, "other.db")
	_, err = runCmd(t, "--config", configPath, "--db", other, "get", `["k"]`)
	require.Error(t, err, "the other store is empty")

	// Partial configs keep defaults for the rest.
	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, db, loaded.DB)
	assert.Equal(t, "bolt", loaded.Backend)
	assert.Equal(t, "info", loaded.Logging.Level)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)

	require.NoError(t, os.WriteFile(configPath, []byte("logging:\n  level: bogus\n"), 0644))
	_, err = runCmd(t, "--config", configPath, "encode", `[1]`)
	require.Error(t, err, "unknown log level")
}

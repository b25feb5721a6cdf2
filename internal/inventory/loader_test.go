package inventory

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "1234567890123456789012345678901212345678901234567890123456789012"

func TestParseTargets(t *testing.T) {
	in := "ipaddr,username,password,site\n" +
		"10.10.10.10,admin,cisco,dc1\n" +
		"\n" +
		"sw-core-01.example.net , netops , s3cret ,dc2\n"

	targets, err := ParseTargets(strings.NewReader(in), Options{})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, Target{Address: "10.10.10.10", Port: 22, Username: "admin", Secret: "cisco"}, targets[0])
	assert.Equal(t, "sw-core-01.example.net", targets[1].Address)
	assert.Equal(t, "s3cret", targets[1].Secret)
}

func TestParseTargets_PortColumn(t *testing.T) {
	in := "username,password,ipaddr,port\nadmin,cisco,127.0.0.1,2222\nadmin,cisco,127.0.0.2,\n"
	targets, err := ParseTargets(strings.NewReader(in), Options{DefaultPort: 22001})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, 2222, targets[0].Port)
	assert.Equal(t, 22001, targets[1].Port)
}

func TestParseTargets_HeaderError(t *testing.T) {
	_, err := ParseTargets(strings.NewReader("ip,user,password\n10.0.0.1,a,b\n"), Options{})
	var he *HeaderError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, []string{"ipaddr", "username"}, he.Missing)
	assert.Contains(t, err.Error(), ExampleFormat)

	_, err = ParseTargets(strings.NewReader(""), Options{})
	require.ErrorAs(t, err, &he)
	assert.Len(t, he.Missing, 3)
}

func TestParseTargets_InvalidRows(t *testing.T) {
	cases := map[string]string{
		"missing address": ",admin,cisco,22",
		"bad address":     "core_sw1,admin,cisco,22",
		"missing user":    "10.0.0.9,,cisco,22",
		"bad port":        "10.0.0.9,admin,cisco,ssh",
		"port range":      "10.0.0.9,admin,cisco,70000",
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			in := "ipaddr,username,password,port\n10.0.0.1,admin,cisco,22\n" + row + "\n10.0.0.2,admin,cisco,22\n"
			targets, err := ParseTargets(strings.NewReader(in), Options{})
			require.NoError(t, err)
			require.Len(t, targets, 3)

			assert.NoError(t, targets[0].Invalid)
			assert.NoError(t, targets[2].Invalid)
			assert.Equal(t, "10.0.0.2", targets[2].Address)

			var re *RowError
			require.ErrorAs(t, targets[1].Invalid, &re)
			assert.Equal(t, 3, re.Line)
		})
	}
}

func TestParseTargets_SyntaxErrorIsFatal(t *testing.T) {
	in := "ipaddr,username,password\n10.0.0.1,admin,cisco\n10.0.0.2,\"admin,cisco\n"
	_, err := ParseTargets(strings.NewReader(in), Options{})
	var re *RowError
	require.ErrorAs(t, err, &re)
}

func TestParseTargets_DecryptFailureIsLocal(t *testing.T) {
	enc, err := EncryptSecret("cisco", testKey)
	require.NoError(t, err)

	in := "ipaddr,username,password\n10.0.0.1,admin," + enc + "\n10.0.0.2,admin,not-hex!\n"
	targets, err := ParseTargets(strings.NewReader(in), Options{SecretKey: testKey})
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.NoError(t, targets[0].Invalid)
	assert.Equal(t, "cisco", targets[0].Secret)
	assert.Error(t, targets[1].Invalid)
}

func TestParseTargets_HeaderOnly(t *testing.T) {
	targets, err := ParseTargets(strings.NewReader("ipaddr,username,password\n"), Options{})
	require.NoError(t, err)
	assert.Empty(t, targets)
}

func TestParseTargets_EncryptedSecrets(t *testing.T) {
	enc, err := EncryptSecret("cisco", testKey)
	require.NoError(t, err)
	assert.NotEqual(t, "cisco", enc)

	in := "ipaddr,username,password\n10.0.0.1,admin," + enc + "\n"
	targets, err := ParseTargets(strings.NewReader(in), Options{SecretKey: testKey})
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "cisco", targets[0].Secret)

	_, err = ParseTargets(strings.NewReader(in), Options{SecretKey: "short"})
	assert.Error(t, err)
}

func TestLoadTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "switches.csv")
	require.NoError(t, os.WriteFile(path, []byte("ipaddr,username,password\n10.0.0.1,admin,cisco\n"), 0o644))

	targets, err := LoadTargets(path, Options{})
	require.NoError(t, err)
	assert.Len(t, targets, 1)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("host,user,pass\n"), 0o644))
	_, err = LoadTargets(bad, Options{})
	var he *HeaderError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, bad, he.Path)

	_, err = LoadTargets(filepath.Join(dir, "missing.csv"), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

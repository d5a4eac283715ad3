package era

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/revcycle/internal/platform/apperr"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		in   string
		want PersonName
		ok   bool
	}{
		{"Doe, Jane", PersonName{First: "Jane", Last: "Doe"}, true},
		{"  Doe ,  Jane  Q ", PersonName{First: "Jane", Last: "Doe"}, true},
		{"Jane Doe", PersonName{First: "Jane", Last: "Doe"}, true},
		{"Jane Q Doe", PersonName{First: "Jane", Last: "Doe"}, true},
		{"Doe", PersonName{Last: "Doe"}, true},
		{"Doe,", PersonName{Last: "Doe"}, true},
		{", Jane", PersonName{}, false},
		{"   ", PersonName{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseName(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPersonName_Matches(t *testing.T) {
	n := PersonName{First: "Jan", Last: "doe"}
	assert.True(t, n.Matches("Jane", "Doe"))
	assert.True(t, n.Matches("J", "DOE"))
	assert.False(t, n.Matches("Mary", "Doe"))
	assert.False(t, n.Matches("Jane", "Dorsey"))
	assert.False(t, n.Matches("Jane", ""))

	lastOnly := PersonName{Last: "Smith"}
	assert.True(t, lastOnly.Matches("anyone", "Smithers"))
}

func TestDecodeImport_ObjectAndArray(t *testing.T) {
	req, err := DecodeImport(strings.NewReader(`{"filename":"a.json","claims":[{"claimNumber":"CLM-1","paidAmountCents":100}]}`))
	require.NoError(t, err)
	assert.Equal(t, "a.json", *req.Filename)
	require.Len(t, req.Claims, 1)
	assert.Equal(t, int64(100), *req.Claims[0].PaidAmountCents)

	req, err = DecodeImport(strings.NewReader(` [{"claimNumber":"CLM-2","paidAmountCents":5}]`))
	require.NoError(t, err)
	assert.Nil(t, req.Filename)
	assert.Equal(t, "CLM-2", *req.Claims[0].ClaimNumber)

	_, err = DecodeImport(strings.NewReader(`{"claims":`))
	assert.Error(t, err)
}

func TestReadImportFile_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(`[{"claimNumber":"CLM-9","paidAmountCents":2500}]`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "remit-0301.json.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	req, err := ReadImportFile(path)
	require.NoError(t, err)
	assert.Equal(t, "remit-0301.json", *req.Filename)
	require.Len(t, req.Claims, 1)
	assert.Equal(t, "CLM-9", *req.Claims[0].ClaimNumber)
}

func TestReadImportFile_Missing(t *testing.T) {
	_, err := ReadImportFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestDecodeImport_MistypedRecordKeepsItsPlace(t *testing.T) {
	req, err := DecodeImport(strings.NewReader(`[{"claimNumber":"CLM-1","paidAmountCents":100},{"claimNumber":"CLM-2","paidAmountCents":"1.00"},{"claimNumber":7},"x"]`))
	require.NoError(t, err)
	require.Len(t, req.Claims, 4)

	assert.NoError(t, req.Claims[0].decodeErr)
	assert.Equal(t, "CLM-2", *req.Claims[1].ClaimNumber)
	assert.True(t, apperr.Is(req.Claims[1].decodeErr, apperr.TypeValidation))
	assert.Nil(t, req.Claims[2].ClaimNumber)
	assert.Error(t, req.Claims[2].decodeErr)
	assert.Error(t, req.Claims[3].decodeErr)
}

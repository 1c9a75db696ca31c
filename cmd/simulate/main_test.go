package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePath = "../../data/simulation/fixture.json"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadFixture_DefaultsImageRefs(t *testing.T) {
	f, err := loadFixture(fixturePath)
	require.NoError(t, err)
	require.Len(t, f.Parcels, 3)
	assert.Equal(t, "p-jakhau-01/before.jpg", f.Parcels[0].BeforeImageRef)
	assert.Equal(t, "p-jakhau-01/after.jpg", f.Parcels[0].AfterImageRef)
}

func TestLoadFixture_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	_, err := loadFixture(filepath.Join(dir, "missing.json"))
	require.Error(t, err)

	_, err = loadFixture(write("bad.json", "{"))
	require.Error(t, err)

	_, err = loadFixture(write("empty.json", `{"parcels": []}`))
	require.ErrorContains(t, err, "no parcels")

	_, err = loadFixture(write("noid.json", `{"parcels": [{"parcelName": "x"}]}`))
	require.ErrorContains(t, err, "no id")
}

func TestSimulate_Fixture(t *testing.T) {
	f, err := loadFixture(fixturePath)
	require.NoError(t, err)

	rep, err := simulate(t.Context(), f, quietLogger())
	require.NoError(t, err)

	require.Len(t, rep.Runs, 3)
	bands := make(map[string]domain.Band)
	for _, run := range rep.Runs {
		assert.True(t, run.Success, run.ParcelID)
		assert.Equal(t, 4, run.Completed, run.ParcelID)
		bands[run.ParcelID] = run.Band
	}
	assert.Equal(t, domain.BandRed, bands["p-jakhau-01"])
	assert.Equal(t, domain.BandYellow, bands["p-mandvi-02"])
	assert.Equal(t, domain.BandGreen, bands["p-okha-03"])

	generated := 0
	for _, o := range rep.Alerts {
		generated += len(o.Generated)
		if o.ParcelID == "p-okha-03" {
			assert.NotEmpty(t, o.Skipped)
		}
	}
	assert.Equal(t, 4, generated)
	assert.Equal(t, 1, rep.Emails, "only the red alert to a user with email escalates")

	require.Len(t, rep.Inbox["u-ravi"], 1)
	assert.True(t, strings.HasSuffix(rep.Inbox["u-ravi"][0].SMSShort, " (SIM)"))
	assert.Len(t, rep.Inbox["u-meena"], 2)
	assert.Len(t, rep.Inbox["u-officer"], 1)
}

func TestReport_Print(t *testing.T) {
	f, err := loadFixture(fixturePath)
	require.NoError(t, err)
	rep, err := simulate(t.Context(), f, quietLogger())
	require.NoError(t, err)

	var buf bytes.Buffer
	rep.print(&buf)
	out := buf.String()
	assert.Contains(t, out, "PARCEL")
	assert.Contains(t, out, "p-okha-03 (Green): skipped")
	assert.Contains(t, out, "generated 4 user alert(s), 1 email(s)")
	assert.Contains(t, out, "[u-ravi] ")
}

package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PriceHistory/internal/exporter"
)

const csvBody = "Date,Open,High,Low,Close,Volume,Adj Close\n" +
	"2024-03-15,14.0,14.5,13.5,14.2,1500,14.2\n" +
	"2024-03-14,13.0,13.5,12.5,13.2,1300,13.1\n" +
	"2024-03-13,12.0,12.5,11.5,12.2,1200,12.1\n" +
	"2024-03-12,11.0,11.5,10.5,11.2,1100,11.1\n"

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestCatalogUpdateExport(t *testing.T) {
	for _, k := range []string{"PRICEHIST_DB_DRIVER", "SQLITE_PATH", "POSTGRES_DSN", "PROVIDER_BASE_URL",
		"HTTPS_PROXY", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "CONFIG_PATH"} {
		t.Setenv(k, "")
	}

	var symbols []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbols = append(symbols, r.URL.Query().Get("s"))
		fmt.Fprint(w, csvBody)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
provider:
  base_url: %s/table.csv
database:
  sqlite_path: %s
log_level: error
`, srv.URL, filepath.Join(dir, "bars.db"))), 0o644))

	require.NoError(t, execute(t, "--config", cfgPath, "exchange", "add", "SZSE", "Shenzhen"))
	require.NoError(t, execute(t, "--config", cfgPath, "exchange", "add", "A", "Main board", "--parent", "SZSE"))
	require.NoError(t, execute(t, "--config", cfgPath, "product", "add", "000001",
		"--suffix", ".SZ", "--exchange", "SZSE", "--board", "A"))

	require.NoError(t, execute(t, "--config", cfgPath, "update", "-p", "d", "--retry", "1", "-d", "2024-03-20"))
	assert.Equal(t, []string{"000001.SZ"}, symbols)

	out := filepath.Join(dir, "bars.parquet")
	require.NoError(t, execute(t, "--config", cfgPath, "export", "-p", "d", "-o", out))
	rows, err := parquet.ReadFile[exporter.Row](out)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "000001", rows[0].Symbol)

	assert.Error(t, execute(t, "--config", cfgPath, "update", "-p", "x"))
}

package mariadb

import (
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestNormalizeDSNPlain(t *testing.T) {
	got, err := normalizeDSN("guard:secret@tcp(127.0.0.1:3306)/audit")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}

	cfg, err := mysql.ParseDSN(got)
	if err != nil {
		t.Fatalf("result is not a valid DSN: %v", err)
	}
	if !cfg.ParseTime {
		t.Error("parseTime not enabled")
	}
	if cfg.DBName != "audit" || cfg.Addr != "127.0.0.1:3306" {
		t.Errorf("DSN mangled: addr=%s db=%s", cfg.Addr, cfg.DBName)
	}
}

func TestNormalizeDSNKeepsExistingParams(t *testing.T) {
	got, err := normalizeDSN("guard:secret@tcp(127.0.0.1:3306)/audit?timeout=5s")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}

	cfg, err := mysql.ParseDSN(got)
	if err != nil {
		t.Fatalf("result is not a valid DSN: %v", err)
	}
	if !cfg.ParseTime {
		t.Error("parseTime not enabled")
	}
	if cfg.Timeout.String() != "5s" {
		t.Errorf("timeout parameter lost: %v", cfg.Timeout)
	}
	if strings.Count(got, "?") > 1 {
		t.Errorf("malformed DSN with multiple '?': %s", got)
	}
}

func TestNormalizeDSNInvalid(t *testing.T) {
	// no slash separating the database name
	if _, err := normalizeDSN("guard:secret@tcp(127.0.0.1:3306)"); err == nil {
		t.Fatal("expected error for malformed DSN")
	}
}

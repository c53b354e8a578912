package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sloppy/lynistracker/internal/db"
	"github.com/sloppy/lynistracker/internal/testutil"
)

const rulesYAML = `groups:
  - name: Baseline
    rules:
      - name: Hardened
        query: hardening_index >= 80
      - name: SSH installed
        query: installed_package_names contains openssh-server
`

func createLicense(t *testing.T, dbPath string, extra ...string) string {
	t.Helper()
	var stdout bytes.Buffer
	args := append([]string{"lynis-tracker", "licenses", "create", "Acme Corp", "--db", dbPath}, extra...)
	if exit := run(args, &stdout, ioDiscard{}); exit != 0 {
		t.Fatalf("licenses create exit %d", exit)
	}
	fields := strings.Fields(strings.TrimPrefix(stdout.String(), "created license "))
	if len(fields) < 1 {
		t.Fatalf("unexpected create output %q", stdout.String())
	}
	return fields[0]
}

func TestLicensesCLI(t *testing.T) {
	tmp := testutil.TempDir(t)
	dbPath := filepath.Join(tmp, "cli.db")
	key := createLicense(t, dbPath, "--max-devices", "5")

	var stdout bytes.Buffer
	if exit := run([]string{"lynis-tracker", "licenses", "list", "--db", dbPath}, &stdout, ioDiscard{}); exit != 0 {
		t.Fatalf("licenses list exit %d", exit)
	}
	out := stdout.String()
	if !strings.Contains(out, key) || !strings.Contains(out, "Acme Corp") || !strings.Contains(out, "devices=0/5") {
		t.Fatalf("unexpected list output %q", out)
	}

	var stderr bytes.Buffer
	if exit := run([]string{"lynis-tracker", "licenses", "create", "X", "--max-devices", "many", "--db", dbPath}, ioDiscard{}, &stderr); exit == 0 {
		t.Fatalf("expected failure for bad --max-devices")
	}
	if !strings.Contains(stderr.String(), "invalid --max-devices") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestImportCLI(t *testing.T) {
	tmp := testutil.TempDir(t)
	dbPath := filepath.Join(tmp, "cli.db")
	key := createLicense(t, dbPath)
	reportPath := testutil.WriteFile(t, "web01.dat", testutil.Report(testutil.WebHost))

	var stdout bytes.Buffer
	args := []string{"lynis-tracker", "import", "--license", key, "--hostid", "h1", "--hostid2", "h2", "--db", dbPath, reportPath}
	if exit := run(args, &stdout, ioDiscard{}); exit != 0 {
		t.Fatalf("import exit %d", exit)
	}
	if !strings.Contains(stdout.String(), "created device") || !strings.Contains(stdout.String(), "web01") {
		t.Fatalf("unexpected import output %q", stdout.String())
	}

	stdout.Reset()
	if exit := run(args, &stdout, ioDiscard{}); exit != 0 {
		t.Fatalf("second import exit %d", exit)
	}
	if !strings.Contains(stdout.String(), "updated device") {
		t.Fatalf("expected existing device to be matched, got %q", stdout.String())
	}

	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer database.Close()
	var reports, diffs int
	if err := database.QueryRow(`SELECT COUNT(*) FROM full_report`).Scan(&reports); err != nil {
		t.Fatalf("count reports: %v", err)
	}
	if err := database.QueryRow(`SELECT COUNT(*) FROM diff_report`).Scan(&diffs); err != nil {
		t.Fatalf("count diffs: %v", err)
	}
	if reports != 2 || diffs != 1 {
		t.Fatalf("expected 2 reports and 1 diff, got %d and %d", reports, diffs)
	}
}

func TestImportCLIRejectsUnknownLicense(t *testing.T) {
	tmp := testutil.TempDir(t)
	dbPath := filepath.Join(tmp, "cli.db")
	reportPath := testutil.WriteFile(t, "web01.dat", testutil.Report(testutil.WebHost))

	var stderr bytes.Buffer
	args := []string{"lynis-tracker", "import", "--license", "nope", "--hostid", "h1", "--hostid2", "h2", "--db", dbPath, reportPath}
	if exit := run(args, ioDiscard{}, &stderr); exit == 0 {
		t.Fatalf("expected non-zero exit")
	}
	if !strings.Contains(stderr.String(), "invalid license key") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestParseCLI(t *testing.T) {
	reportPath := testutil.WriteFile(t, "web01.dat", testutil.Report(testutil.WebHost))

	var stdout bytes.Buffer
	if exit := run([]string{"lynis-tracker", "parse", reportPath}, &stdout, ioDiscard{}); exit != 0 {
		t.Fatalf("parse exit %d", exit)
	}
	var facts map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &facts); err != nil {
		t.Fatalf("decode facts: %v", err)
	}
	if facts["hostname"] != "web01" {
		t.Fatalf("unexpected hostname %v", facts["hostname"])
	}
	if facts["hardening_index"] != float64(70) {
		t.Fatalf("unexpected hardening_index %v", facts["hardening_index"])
	}
}

func TestEvaluateCLI(t *testing.T) {
	reportPath := testutil.WriteFile(t, "web01.dat", testutil.Report(testutil.WebHost))
	rulesPath := testutil.WriteFile(t, "rules.yaml", rulesYAML)

	var stdout bytes.Buffer
	if exit := run([]string{"lynis-tracker", "evaluate", "--rules", rulesPath, reportPath}, &stdout, ioDiscard{}); exit != 0 {
		t.Fatalf("evaluate exit %d", exit)
	}
	var result struct {
		Compliant bool `json:"compliant"`
		Groups    []struct {
			Rules []struct {
				Name      string `json:"name"`
				Compliant bool   `json:"compliant"`
			} `json:"rules"`
		} `json:"groups"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Compliant || len(result.Groups) != 1 || len(result.Groups[0].Rules) != 2 {
		t.Fatalf("unexpected result %s", stdout.String())
	}
	if result.Groups[0].Rules[0].Compliant || !result.Groups[0].Rules[1].Compliant {
		t.Fatalf("expected Hardened to fail and SSH installed to pass, got %s", stdout.String())
	}

	if exit := run([]string{"lynis-tracker", "evaluate", reportPath}, ioDiscard{}, ioDiscard{}); exit == 0 {
		t.Fatalf("expected failure without --rules")
	}
}

func TestRulesLoadAndExportCLI(t *testing.T) {
	tmp := testutil.TempDir(t)
	dbPath := filepath.Join(tmp, "cli.db")
	key := createLicense(t, dbPath)
	rulesPath := testutil.WriteFile(t, "rules.yaml", rulesYAML)
	reportPath := testutil.WriteFile(t, "web01.dat", testutil.Report(testutil.WebHost))

	var stdout bytes.Buffer
	if exit := run([]string{"lynis-tracker", "rules", "load", "--license", key, "--db", dbPath, rulesPath}, &stdout, ioDiscard{}); exit != 0 {
		t.Fatalf("rules load exit %d", exit)
	}
	if !strings.Contains(stdout.String(), "loaded 1 rule groups") {
		t.Fatalf("unexpected rules output %q", stdout.String())
	}
	args := []string{"lynis-tracker", "import", "--license", key, "--hostid", "h1", "--hostid2", "h2", "--db", dbPath, reportPath}
	if exit := run(args, ioDiscard{}, ioDiscard{}); exit != 0 {
		t.Fatalf("import exit %d", exit)
	}

	outPath := filepath.Join(tmp, "export.csv")
	if exit := run([]string{"lynis-tracker", "export", "--license", key, "--format", "csv", "-o", outPath, "--db", dbPath}, ioDiscard{}, ioDiscard{}); exit != 0 {
		t.Fatalf("export exit %d", exit)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", data)
	}
	if !strings.Contains(lines[1], "web01") || !strings.Contains(lines[1], "Non-Compliant") {
		t.Fatalf("unexpected row %q", lines[1])
	}

	var stderr bytes.Buffer
	if exit := run([]string{"lynis-tracker", "export", "--license", key, "--format", "xml", "-o", filepath.Join(tmp, "x.xml"), "--db", dbPath}, ioDiscard{}, &stderr); exit == 0 {
		t.Fatalf("expected failure for unknown format")
	}
	if _, err := os.Stat(filepath.Join(tmp, "x.xml")); !os.IsNotExist(err) {
		t.Fatalf("expected no output file for unknown format")
	}
}

func TestUnknownCommand(t *testing.T) {
	var stderr bytes.Buffer
	if exit := run([]string{"lynis-tracker", "frobnicate"}, ioDiscard{}, &stderr); exit != 1 {
		t.Fatalf("expected exit 1, got %d", exit)
	}
	if !strings.Contains(stderr.String(), "unknown command") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

// ioDiscard is a minimal io.Writer to drop output without importing io once more.
type ioDiscard struct{}

func (ioDiscard) Write(p []byte) (int, error) { return len(p), nil }

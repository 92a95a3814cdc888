package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMembersMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_members.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no members migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS members",
		"membership_id TEXT UNIQUE",
		"ON members (email) WHERE deleted_at IS NULL",
		"REFERENCES membership_plans(id)",
		"DROP TABLE IF EXISTS members",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationEnforcesOnePaymentPerInvoice(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_payments.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no payments migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}

	if !strings.Contains(string(data), "invoice_id BIGINT NOT NULL UNIQUE REFERENCES invoices(id)") {
		t.Errorf("payments migration missing unique invoice constraint")
	}
}

package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/dealroom-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestOffersMigrationEnforcesVersionUniqueness(t *testing.T) {
	assertContains(t, readMigration(t, "create_offers"), []string{
		"CREATE TABLE IF NOT EXISTS offers",
		"CONSTRAINT ux_offers_room_version UNIQUE (room_id, version)",
		"CHECK (price > 0)",
		"DROP TABLE IF EXISTS offers",
	})
}

func TestSignatureMigrationHasOneRequestPerSigner(t *testing.T) {
	assertContains(t, readMigration(t, "create_documents_and_signatures"), []string{
		"CREATE TABLE IF NOT EXISTS documents",
		"CONSTRAINT ux_signature_requests_document_signer UNIQUE (document_id, signer_id)",
		"FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE",
	})
}

func TestSettlementMigrationAllowsOneSettlementPerDocument(t *testing.T) {
	assertContains(t, readMigration(t, "create_settlements_and_fee_policies"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_settlements_document ON settlements (document_id)",
		"CHECK (rate_percent >= 0 AND rate_percent <= 100)",
		"DROP TABLE IF EXISTS fee_policies",
	})
}

func TestOutboxMigrationGuardsTerminalEvents(t *testing.T) {
	assertContains(t, readMigration(t, "create_outbox"), []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_once_per_aggregate",
		"'document_fully_signed'",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
	})
}

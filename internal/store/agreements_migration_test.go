package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPartnerAgreementsMigrationUsesBlockingTriggers(t *testing.T) {
	migrationPath := filepath.Join("..", "..", "db", "migrations", "0003_partners.up.sql")
	sqlBytes, err := os.ReadFile(migrationPath)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	expectedSnippets := []string{
		"partner_agreements_block_stage_update",
		"RAISE EXCEPTION",
		"CREATE TRIGGER trg_partner_agreements_append_only",
		"CREATE TRIGGER trg_partner_agreements_block_delete",
		"clock_timestamp()",
	}
	for _, snippet := range expectedSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if strings.Contains(sqlText, "DO INSTEAD NOTHING") {
		t.Fatalf("expected hard-fail append-only guard, found silent DO INSTEAD NOTHING rule")
	}
}

package rules

import (
	"context"
	"testing"

	"github.com/cooperative-finance/kestrel/internal/domain"
)

func TestCustomEngine(t *testing.T) {
	engine, err := NewCustomEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	t.Run("LoadAndEvaluate", func(t *testing.T) {
		err := engine.LoadRule(&domain.RuleConfig{
			ID:         "dp-exceeds-limit",
			Name:       "Drawing power exceeds sanctioned limit",
			Expression: `drawing_power > limit_sanctioned && limit_sanctioned > 0.0`,
			Enabled:    true,
		})
		if err != nil {
			t.Fatalf("failed to load rule: %v", err)
		}

		snap := &domain.Snapshot{
			SocietyID: "society-001",
			Accounts: []*domain.Account{
				{AccountNo: "A-1", DrawingPower: amt("6000"), LimitSanctioned: amt("5000")},
				{AccountNo: "A-2", DrawingPower: amt("4000"), LimitSanctioned: amt("5000")},
			},
		}

		drafts, n := engine.Evaluate(context.Background(), snap)
		if n != 1 {
			t.Errorf("expected 1 rule evaluated, got %d", n)
		}
		if len(drafts) != 1 {
			t.Fatalf("expected 1 draft, got %d", len(drafts))
		}
		if drafts[0].Account.AccountNo != "A-1" {
			t.Errorf("wrong account: %s", drafts[0].Account.AccountNo)
		}
		if drafts[0].Type != domain.AlertType("CUSTOM:dp-exceeds-limit") {
			t.Errorf("unexpected type: %s", drafts[0].Type)
		}
	})

	t.Run("ValidateRejectsNonBool", func(t *testing.T) {
		err := engine.ValidateRule(&domain.RuleConfig{
			ID:         "bad-output",
			Expression: `outstanding + 1.0`,
		})
		if err == nil {
			t.Error("expected error for non-bool expression")
		}
	})

	t.Run("ValidateRejectsBadSyntax", func(t *testing.T) {
		err := engine.ValidateRule(&domain.RuleConfig{
			ID:         "bad-syntax",
			Expression: `outstanding >`,
		})
		if err == nil {
			t.Error("expected error for invalid expression")
		}
	})

	t.Run("ValidateDoesNotLoad", func(t *testing.T) {
		before := engine.RulesCount()
		_ = engine.ValidateRule(&domain.RuleConfig{
			ID:         "validated-only",
			Expression: `outstanding > 100.0`,
		})
		if engine.RulesCount() != before {
			t.Error("validate must not mutate the loaded set")
		}
	})

	t.Run("ReloadReplaces", func(t *testing.T) {
		err := engine.ReloadRules([]*domain.RuleConfig{
			{ID: "r1", Name: "r1", Expression: `full_withdrawal_count > 1`, Enabled: true},
			{ID: "r2", Name: "r2", Expression: `has_last_activity`, Enabled: true},
			{ID: "r3", Name: "r3", Expression: `true`, Enabled: false},
		})
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
		if engine.RulesCount() != 2 {
			t.Errorf("expected 2 enabled rules loaded, got %d", engine.RulesCount())
		}
	})

	t.Run("DeterministicOrder", func(t *testing.T) {
		if err := engine.ReloadRules([]*domain.RuleConfig{
			{ID: "b-rule", Name: "b", Expression: `outstanding > 0.0`, Enabled: true},
			{ID: "a-rule", Name: "a", Expression: `outstanding > 0.0`, Enabled: true},
		}); err != nil {
			t.Fatalf("reload failed: %v", err)
		}

		snap := &domain.Snapshot{
			SocietyID: "society-001",
			Accounts:  []*domain.Account{{AccountNo: "A-1", Outstanding: amt("10")}},
		}

		drafts, _ := engine.Evaluate(context.Background(), snap)
		if len(drafts) != 2 {
			t.Fatalf("expected 2 drafts, got %d", len(drafts))
		}
		if drafts[0].Type != domain.AlertType("CUSTOM:a-rule") {
			t.Errorf("drafts must follow rule-id order, got %s first", drafts[0].Type)
		}
	})
}

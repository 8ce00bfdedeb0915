package restore

import (
	"strings"
	"testing"
)

func TestCatalog_Order(t *testing.T) {
	c := marketCatalog(t)

	got, err := c.Order()
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	want := tableNames("categories", "profiles", "products", "favorites", "site_settings")
	if !equalNames(got, want) {
		t.Errorf("Order() = %v, want %v", got, want)
	}
}

func TestCatalog_OrderRespectsReferences(t *testing.T) {
	// Registered child-first, with tiers that would put the child first.
	c, err := NewCatalog(
		TableDefinition{Name: "messages", Tier: TierReference,
			References: []Reference{{Column: "conversation_id", Table: "conversations"}}},
		TableDefinition{Name: "conversations", Tier: TierLog},
	)
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	got, err := c.Order()
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	if !equalNames(got, tableNames("conversations", "messages")) {
		t.Errorf("Order() = %v, want parents first", got)
	}
}

func TestCatalog_OrderTieBreak(t *testing.T) {
	c, _ := NewCatalog(
		TableDefinition{Name: "b_log", Tier: TierLog},
		TableDefinition{Name: "a_owner", Tier: TierOwner},
		TableDefinition{Name: "c_owner", Tier: TierOwner},
	)

	got, err := c.Order()
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	if !equalNames(got, tableNames("a_owner", "c_owner", "b_log")) {
		t.Errorf("Order() = %v, want tier then registration order", got)
	}
}

func TestCatalog_Cycle(t *testing.T) {
	c, _ := NewCatalog(
		TableDefinition{Name: "a", References: []Reference{{Column: "b_id", Table: "b"}}},
		TableDefinition{Name: "b", References: []Reference{{Column: "a_id", Table: "a"}}},
	)

	_, err := c.Order()
	if err == nil {
		t.Fatal("Order() expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %v, want cycle error", err)
	}
}

func TestCatalog_UnknownReference(t *testing.T) {
	c, _ := NewCatalog(TableDefinition{Name: "a", References: []Reference{{Column: "x_id", Table: "x"}}})
	if _, err := c.Order(); err == nil {
		t.Error("Order() expected error for unregistered reference")
	}
}

func TestCatalog_Register(t *testing.T) {
	c, _ := NewCatalog()
	if err := c.Register(TableDefinition{Name: "a"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := c.Register(TableDefinition{Name: "a"}); err == nil {
		t.Error("Register() expected duplicate error")
	}
	if err := c.Register(TableDefinition{}); err == nil {
		t.Error("Register() expected error for unnamed table")
	}

	// Registering invalidates the cached order.
	if _, err := c.Order(); err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	c.Register(TableDefinition{Name: "b"})
	order, _ := c.Order()
	if len(order) != 2 {
		t.Errorf("Order() = %v, want 2 tables after Register", order)
	}
}

func TestTableDefinition_Identity(t *testing.T) {
	if got := (TableDefinition{}).Identity(); got != "id" {
		t.Errorf("Identity() = %q, want %q", got, "id")
	}
	if got := (TableDefinition{IDField: "key"}).Identity(); got != "key" {
		t.Errorf("Identity() = %q, want %q", got, "key")
	}
}

func TestTier_String(t *testing.T) {
	if TierDependent.String() != "dependent" {
		t.Errorf("TierDependent.String() = %q", TierDependent.String())
	}
	if Tier(99).String() != "unknown" {
		t.Errorf("Tier(99).String() = %q, want unknown", Tier(99).String())
	}
}

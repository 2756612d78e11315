package rendezvous

import "testing"

func TestOwnerIsDeterministic(t *testing.T) {
	c := New([]string{"a", "b", "c"})
	first := c.Owner("trigger-1")
	for i := 0; i < 100; i++ {
		if got := c.Owner("trigger-1"); got != first {
			t.Fatalf("owner changed across calls: %s != %s", got, first)
		}
	}
}

func TestExactlyOneOwnerPerItem(t *testing.T) {
	c := New([]string{"a", "b", "c", "d"})
	items := make([]string, 200)
	for i := range items {
		items[i] = string(rune('A' + i%26))
	}
	for _, item := range items {
		owner := c.Owner(item)
		found := false
		for _, n := range c.Nodes() {
			if n == owner {
				found = true
			}
		}
		if !found {
			t.Fatalf("owner %s of %s is not a live node", owner, item)
		}
	}
}

func TestRebalanceOnNodeRemoval(t *testing.T) {
	nodes := []string{"a", "b"}
	c := New(nodes)

	items := make([]string, 100)
	for i := range items {
		items[i] = string(rune(i)) + "-trigger"
	}

	before := c.OwnedSet("a", items)

	c.SetNodes([]string{"a"})
	after := c.OwnedSet("a", items)

	if len(after) != len(items) {
		t.Fatalf("expected node a to own all %d items after b's removal, got %d", len(items), len(after))
	}
	if len(before) == len(items) {
		t.Fatal("expected node a to own a strict subset while b was alive")
	}
}

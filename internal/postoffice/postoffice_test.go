package postoffice

import "testing"

type tokenIncrement struct{ id int }
type triggerChange struct{ ids []int }

func TestPostAndReceiveDistinctTypes(t *testing.T) {
	po := New()

	Post(po, tokenIncrement{id: 1})
	Post(po, triggerChange{ids: []int{1, 2}})

	got := <-Mailbox[tokenIncrement](po)
	if got.id != 1 {
		t.Fatalf("got %+v, want id=1", got)
	}

	gotChange := <-Mailbox[triggerChange](po)
	if len(gotChange.ids) != 2 {
		t.Fatalf("got %+v, want 2 ids", gotChange)
	}
}

func TestTryPostFullMailboxReturnsFalse(t *testing.T) {
	po := New()
	for i := 0; i < mailboxBufferSize; i++ {
		if !TryPost(po, tokenIncrement{id: i}) {
			t.Fatalf("unexpected full mailbox at %d", i)
		}
	}
	if TryPost(po, tokenIncrement{id: 999}) {
		t.Fatal("expected mailbox to be full")
	}
}

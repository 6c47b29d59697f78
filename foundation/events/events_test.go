package events_test

import (
	"testing"

	"github.com/ardanlabs/ledger/foundation/events"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Events(t *testing.T) {
	t.Log("Given the need to fan out node events.")
	{
		evts := events.New()

		a := evts.Acquire("a")
		b := evts.Acquire("b")
		if evts.Acquire("a") != a {
			t.Fatalf("\t%s\tShould return the same channel for the same id.", failed)
		}
		t.Logf("\t%s\tShould return the same channel for the same id.", success)

		evts.Send("state: MineNewBlock: started")
		for _, ch := range []<-chan string{a, b} {
			if msg := <-ch; msg != "state: MineNewBlock: started" {
				t.Fatalf("\t%s\tShould deliver the event to every subscriber: %q", failed, msg)
			}
		}
		t.Logf("\t%s\tShould deliver the event to every subscriber.", success)

		if err := evts.Release("a"); err != nil {
			t.Fatalf("\t%s\tShould be able to release a subscriber: %v", failed, err)
		}
		if _, open := <-a; open {
			t.Fatalf("\t%s\tShould close a released channel.", failed)
		}
		if err := evts.Release("a"); err == nil {
			t.Fatalf("\t%s\tShould not release an unknown subscriber.", failed)
		}
		t.Logf("\t%s\tShould release a subscriber once.", success)

		for j := 0; j < 200; j++ {
			evts.Send("flood")
		}
		t.Logf("\t%s\tShould not block on a slow subscriber.", success)

		evts.Shutdown()
		if evts.Count() != 0 {
			t.Fatalf("\t%s\tShould remove all subscribers on shutdown.", failed)
		}
		if _, open := <-evts.Acquire("c"); open {
			t.Fatalf("\t%s\tShould hand out closed channels after shutdown.", failed)
		}
		t.Logf("\t%s\tShould shut down.", success)
	}
}

package peer_test

import (
	"testing"

	"github.com/ardanlabs/ledger/foundation/blockchain/peer"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_CRUD(t *testing.T) {
	type table struct {
		name  string
		peers []peer.Peer
		self  string
		exp   []string
	}

	tt := []table{
		{
			name:  "basic",
			peers: []peer.Peer{{Host: "host3"}, {Host: "host1"}, {Host: "host2"}},
			self:  "",
			exp:   []string{"host1", "host2", "host3"},
		},
		{
			name:  "self",
			peers: []peer.Peer{{Host: "host3"}, {Host: "host1"}, {Host: "host2"}},
			self:  "host2",
			exp:   []string{"host1", "host3"},
		},
		{
			name:  "duplicates",
			peers: []peer.Peer{{Host: "host1"}, {Host: "host1"}},
			self:  "host9",
			exp:   []string{"host1"},
		},
	}

	t.Log("Given the need to maintain the set of known peers.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				ps := peer.NewSet()

				for _, p := range tst.peers {
					ps.Add(p)
				}

				peers := ps.Copy(tst.self)
				if len(peers) != len(tst.exp) {
					t.Logf("\t\tTest %d:\tgot: %d", testID, len(peers))
					t.Logf("\t\tTest %d:\texp: %d", testID, len(tst.exp))
					t.Fatalf("\t%s\tTest %d:\tShould get back the right peers.", failed, testID)
				}

				for i, host := range tst.exp {
					if peers[i].Host != host {
						t.Fatalf("\t%s\tTest %d:\tShould get the peers sorted, got %v.", failed, testID, peers)
					}
				}
				t.Logf("\t%s\tTest %d:\tShould get back the right peers in order.", success, testID)

				ps.Remove(peer.New(tst.exp[0]))
				if ps.Contains(peer.New(tst.exp[0])) {
					t.Fatalf("\t%s\tTest %d:\tShould be able to remove a peer.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould be able to remove a peer.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

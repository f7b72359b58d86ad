package bridge

import (
	"testing"
	"time"

	"github.com/hodlwarz/arena/internal/ability"
	"github.com/hodlwarz/arena/internal/ledger"
)

func TestMergeCountersTakeMax(t *testing.T) {
	now := time.Unix(1000, 0)
	local := Local{XP: 500, Kills: 3, Deaths: 7, Alive: true, Health: 80}
	remote := ledger.Snapshot{XP: 300, Kills: 9, Deaths: 2, Alive: true, Health: 60}

	res := Merge(local, remote, now)

	if res.XP != 500 || res.Kills != 9 || res.Deaths != 7 {
		t.Fatalf("merged counters = %d/%d/%d, want 500/9/7", res.XP, res.Kills, res.Deaths)
	}
}

func TestMergeVitalsOnlyWhenCaughtUp(t *testing.T) {
	now := time.Unix(1000, 0)

	behind := ledger.Snapshot{XP: 100, Kills: 1, Alive: false, Health: 0}
	res := Merge(Local{XP: 500, Kills: 3, Alive: true, Health: 80}, behind, now)
	if res.AdoptVitals {
		t.Fatal("a ledger behind on counters must not dictate vitals")
	}

	caught := ledger.Snapshot{XP: 600, Kills: 4, Alive: false, Health: 0}
	res = Merge(Local{XP: 500, Kills: 3, Alive: true, Health: 80}, caught, now)
	if !res.AdoptVitals || res.Alive {
		t.Fatalf("caught-up ledger death should be adopted, got %+v", res)
	}
}

func TestMergeRespawnGraceSuppressesVitals(t *testing.T) {
	now := time.Unix(1000, 0)
	remote := ledger.Snapshot{XP: 600, Kills: 4, Alive: false}

	res := Merge(Local{XP: 500, Kills: 3, Alive: true, RespawnedAt: now.Add(-time.Second)}, remote, now)
	if res.AdoptVitals {
		t.Fatal("vitals adopted inside the respawn grace window")
	}

	res = Merge(Local{XP: 500, Kills: 3, Alive: true, RespawnedAt: now.Add(-RespawnGrace - time.Second)}, remote, now)
	if !res.AdoptVitals {
		t.Fatal("vitals not adopted after the grace window elapsed")
	}
}

func TestMergeRankAdoption(t *testing.T) {
	now := time.Unix(1000, 0)

	var remoteRanks ability.Ranks
	remoteRanks.Set(ability.IronSkin, 3)
	remoteRanks.Set(ability.Swift, 2)
	remote := ledger.Snapshot{XP: 600, Kills: 4, Alive: true, Health: 100, Ranks: remoteRanks}

	var localRanks ability.Ranks
	localRanks.Set(ability.IronSkin, 1)

	// Ledger has more points, no manual build: adopt wholesale.
	res := Merge(Local{XP: 500, Alive: true, Ranks: localRanks}, remote, now)
	if !res.AdoptRanks || res.Ranks != remoteRanks {
		t.Fatalf("expected wholesale rank adoption, got %+v", res)
	}
	if res.RanksDiverged {
		t.Fatal("adopted ranks cannot be diverged")
	}

	// Same, but with a manual build: local wins and diverges.
	res = Merge(Local{XP: 500, Alive: true, Ranks: localRanks, ManualBuild: true}, remote, now)
	if res.AdoptRanks {
		t.Fatal("manual build must never be overwritten by the ledger")
	}
	if !res.RanksDiverged {
		t.Fatal("manual build differing from ledger should flag divergence")
	}

	// Local has more points: keep local, flag the gap for catch-up.
	var richLocal ability.Ranks
	richLocal.Set(ability.IronSkin, 5)
	richLocal.Set(ability.HeavyHitter, 2)
	res = Merge(Local{XP: 500, Alive: true, Ranks: richLocal}, remote, now)
	if res.AdoptRanks {
		t.Fatal("a poorer ledger build must not replace a richer local one")
	}
	if !res.RanksDiverged {
		t.Fatal("richer local build should flag divergence")
	}
}

func TestMergeIdempotent(t *testing.T) {
	now := time.Unix(1000, 0)
	var remoteRanks ability.Ranks
	remoteRanks.Set(ability.IronSkin, 2)
	remote := ledger.Snapshot{XP: 600, Kills: 4, Deaths: 1, Alive: true, Health: 90, Ranks: remoteRanks}

	local := Local{XP: 500, Kills: 3, Deaths: 2, Alive: true, Health: 80}
	first := Merge(local, remote, now)

	// Feed the merged result back in as the new local view.
	second := Merge(Local{
		XP:     first.XP,
		Kills:  first.Kills,
		Deaths: first.Deaths,
		Health: first.Health,
		Alive:  first.Alive,
		Ranks:  first.Ranks,
	}, remote, now)

	if second.XP != first.XP || second.Kills != first.Kills || second.Deaths != first.Deaths {
		t.Fatal("second merge moved the counters")
	}
	if second.Ranks != first.Ranks {
		t.Fatal("second merge moved the ranks")
	}
	if second.RanksDiverged {
		t.Fatal("second merge flagged divergence on converged state")
	}
}

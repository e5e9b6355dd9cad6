package subscription

import (
	"testing"
	"time"
)

func feedIDs(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.FeedID
	}
	return out
}

func TestAddAndGetAll(t *testing.T) {
	s := New(10)
	s.Add("feed-a", map[string]interface{}{"base": "ETH"}, time.Minute)
	s.Add("feed-b", map[string]interface{}{"base": "BTC"}, time.Minute)

	all := s.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 members, got %d: %v", len(all), all)
	}
}

func TestGetAllCarriesOriginalParams(t *testing.T) {
	s := New(10)
	params := map[string]interface{}{"base": "ETH", "quote": "USD"}
	s.Add("feed-a", params, time.Minute)

	all := s.GetAll()
	if len(all) != 1 {
		t.Fatalf("expected 1 member, got %d", len(all))
	}
	if all[0].Params["base"] != "ETH" || all[0].Params["quote"] != "USD" {
		t.Fatalf("expected original params to survive round trip, got %v", all[0].Params)
	}
}

func TestGetAllSweepsExpired(t *testing.T) {
	s := New(10)
	s.Add("expired", nil, -time.Second)
	s.Add("live", nil, time.Minute)

	all := feedIDs(s.GetAll())
	if len(all) != 1 || all[0] != "live" {
		t.Fatalf("expected only 'live' to survive, got %v", all)
	}
	if s.Size() != 1 {
		t.Fatalf("expected expired member swept, size=%d", s.Size())
	}
}

func TestAddRefreshesExistingTTL(t *testing.T) {
	s := New(10)
	s.Add("feed-a", nil, -time.Second)
	s.Add("feed-a", map[string]interface{}{"base": "ETH"}, time.Minute) // refresh before anyone reads

	if !s.Contains("feed-a") {
		t.Fatalf("expected refreshed member to be live")
	}
	if s.Size() != 1 {
		t.Fatalf("expected single member after refresh, got %d", s.Size())
	}

	all := s.GetAll()
	if all[0].Params["base"] != "ETH" {
		t.Fatalf("expected refresh to update stored params, got %v", all[0].Params)
	}
}

func TestOverflowEvictsEarliestExpiry(t *testing.T) {
	s := New(2)
	s.Add("soon", nil, 10*time.Millisecond)
	s.Add("later", nil, time.Hour)

	evicted := s.Add("latest", nil, 2*time.Hour)
	if !evicted {
		t.Fatalf("expected eviction to occur at capacity")
	}

	if s.Contains("soon") {
		t.Fatalf("expected earliest-expiring member ('soon') to be evicted, not a survivor")
	}
	if !s.Contains("later") || !s.Contains("latest") {
		t.Fatalf("expected later/latest to survive eviction")
	}
}

func TestRemove(t *testing.T) {
	s := New(10)
	s.Add("feed-a", nil, time.Minute)

	if !s.Remove("feed-a") {
		t.Fatalf("expected Remove to report existing member")
	}
	if s.Remove("feed-a") {
		t.Fatalf("expected second Remove to report absence")
	}
}

func TestOrderingStaysAscendingAcrossInserts(t *testing.T) {
	s := New(10)
	s.Add("mid", nil, 2*time.Minute)
	s.Add("earliest", nil, 1*time.Minute)
	s.Add("latest", nil, 3*time.Minute)

	all := feedIDs(s.GetAll())
	if len(all) != 3 {
		t.Fatalf("expected 3 members, got %d", len(all))
	}
	if all[0] != "earliest" || all[2] != "latest" {
		t.Fatalf("expected ascending expiry order, got %v", all)
	}
}

package overpass

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"driver-nav-service/internal/ports"

	"github.com/paulmach/orb"
)

const fixture = `{"elements":[
  {"type":"way","id":1,"nodes":[10,11,12],"tags":{"highway":"residential","name":"Elm St"}},
  {"type":"way","id":2,"nodes":[12,99],"tags":{"highway":"primary"}},
  {"type":"way","id":3,"nodes":[10,11],"tags":{"highway":"footway"}},
  {"type":"way","id":4,"nodes":[10,12],"tags":{"highway":"service","access":"private"}},
  {"type":"way","id":5,"nodes":[11,12],"tags":{"highway":"primary","name":"Van Buren"}},
  {"type":"node","id":20,"lat":33.451,"lon":-112.071,"tags":{"amenity":"pharmacy","name":"Corner Rx"}},
  {"type":"node","id":21,"lat":33.452,"lon":-112.072,"tags":{"shop":"convenience"}},
  {"type":"node","id":10,"lat":33.450,"lon":-112.070},
  {"type":"node","id":11,"lat":33.451,"lon":-112.070},
  {"type":"node","id":12,"lat":33.452,"lon":-112.070}
]}`

func TestBuildQuery(t *testing.T) {
	b := orb.Bound{Min: orb.Point{-112.085, 33.435}, Max: orb.Point{-112.055, 33.465}}
	got := BuildQuery(b, []string{"primary", "residential"}, false)
	want := `[out:json][timeout:30];(way["highway"~"^(primary|residential)$"](33.435,-112.085,33.465,-112.055););out body;>;out skel qt;`
	if got != want {
		t.Fatalf("BuildQuery =\n%s\nwant\n%s", got, want)
	}

	withPlaces := BuildQuery(b, []string{"primary"}, true)
	if !strings.Contains(withPlaces, `node["amenity"]["name"]`) || !strings.Contains(withPlaces, `node["shop"]["name"]`) {
		t.Fatalf("places query missing node selectors: %s", withPlaces)
	}
}

func TestFilterClasses(t *testing.T) {
	got, err := FilterClasses(nil)
	if err != nil || len(got) != len(DefaultClasses) {
		t.Fatalf("FilterClasses(nil) = %v, %v", got, err)
	}

	got, err = FilterClasses([]string{"primary", "track", "primary", "residential", "private"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(got, ",") != "primary,residential" {
		t.Fatalf("FilterClasses = %v, want [primary residential]", got)
	}

	if _, err := FilterClasses([]string{"footway"}); err == nil {
		t.Fatalf("expected error when no class is drivable")
	}
}

func TestFetchAreaReducesWays(t *testing.T) {
	var gotQuery, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(b))
		gotQuery = form.Get("data")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(fixture))
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, time.Second, nil)
	data, err := p.FetchArea(context.Background(), ports.AreaQuery{
		Bound:         orb.Bound{Min: orb.Point{-112.08, 33.44}, Max: orb.Point{-112.06, 33.46}},
		Classes:       []string{"residential", "primary", "service"},
		IncludePlaces: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotContentType != "application/x-www-form-urlencoded" {
		t.Fatalf("content type = %q", gotContentType)
	}
	if !strings.HasPrefix(gotQuery, "[out:json][timeout:30];") {
		t.Fatalf("query = %q", gotQuery)
	}

	// way 2 has one resolvable node, way 3 is not requested, way 4 is private.
	if len(data.Roads) != 2 {
		t.Fatalf("roads = %d, want 2: %+v", len(data.Roads), data.Roads)
	}
	elm := data.Roads[0]
	if elm.HighwayClass != "residential" || elm.Name != "Elm St" || len(elm.Points) != 3 {
		t.Fatalf("first road = %+v", elm)
	}
	if elm.Points[0] != (orb.Point{-112.070, 33.450}) {
		t.Fatalf("first point = %v, want [lon lat]", elm.Points[0])
	}
	if data.Roads[1].Name != "Van Buren" {
		t.Fatalf("second road = %+v", data.Roads[1])
	}

	if len(data.Places) != 1 || data.Places[0].Name != "Corner Rx" || data.Places[0].Type != "pharmacy" {
		t.Fatalf("places = %+v", data.Places)
	}
}

func TestFetchAreaDoesNotRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, time.Second, nil)
	_, err := p.FetchArea(context.Background(), ports.AreaQuery{
		Bound: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{0.01, 0.01}},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"driver-nav-service/internal/domain"
	"driver-nav-service/internal/platform/httpx"
	"driver-nav-service/internal/platform/obs"
	"driver-nav-service/internal/ports"

	"github.com/paulmach/orb"
)

const DefaultURL = "https://overpass-api.de/api/interpreter"

// DefaultClasses are the drivable highway classes requested when the caller
// passes none. Access-restricted classes (track, path, private service
// ways) are never requested.
var DefaultClasses = []string{
	"motorway",
	"motorway_link",
	"trunk",
	"trunk_link",
	"primary",
	"primary_link",
	"secondary",
	"secondary_link",
	"tertiary",
	"tertiary_link",
	"residential",
	"living_street",
	"unclassified",
	"service",
}

var allowedClass = func() map[string]bool {
	m := make(map[string]bool, len(DefaultClasses))
	for _, c := range DefaultClasses {
		m[c] = true
	}
	return m
}()

// Provider implements ports.MapDataProvider against an Overpass API endpoint.
// Each FetchArea is exactly one outbound request; pacing is the caller's job.
type Provider struct {
	client  *httpx.Client
	baseURL string
	log     *slog.Logger
}

func NewProvider(baseURL string, timeout time.Duration, lg *slog.Logger) *Provider {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 35 * time.Second
	}
	c := httpx.NewClient(timeout)
	// Retries would bypass the caller's throttle.
	c.MaxAttempts = 1

	return &Provider{client: c, baseURL: baseURL, log: lg}
}

// FilterClasses keeps the whitelisted classes of the request in order,
// dropping duplicates. An empty request means DefaultClasses.
func FilterClasses(classes []string) ([]string, error) {
	if len(classes) == 0 {
		return DefaultClasses, nil
	}
	seen := make(map[string]bool, len(classes))
	out := make([]string, 0, len(classes))
	for _, c := range classes {
		c = strings.TrimSpace(c)
		if !allowedClass[c] || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("overpass: no drivable road classes in %v", classes)
	}
	return out, nil
}

// BuildQuery renders the Overpass QL for a bound.
func BuildQuery(b orb.Bound, classes []string, includePlaces bool) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	bbox := strings.Join([]string{f(b.Min.Lat()), f(b.Min.Lon()), f(b.Max.Lat()), f(b.Max.Lon())}, ",")

	var q strings.Builder
	q.WriteString("[out:json][timeout:30];(")
	fmt.Fprintf(&q, `way["highway"~"^(%s)$"](%s);`, strings.Join(classes, "|"), bbox)
	if includePlaces {
		fmt.Fprintf(&q, `node["amenity"]["name"](%s);`, bbox)
		fmt.Fprintf(&q, `node["shop"]["name"](%s);`, bbox)
	}
	q.WriteString(");out body;>;out skel qt;")
	return q.String()
}

type response struct {
	Elements []element `json:"elements"`
}

type element struct {
	Type  string            `json:"type"`
	ID    int64             `json:"id"`
	Lat   float64           `json:"lat"`
	Lon   float64           `json:"lon"`
	Nodes []int64           `json:"nodes"`
	Tags  map[string]string `json:"tags"`
}

// FetchArea queries roads (and optionally places) inside q.Bound.
func (p *Provider) FetchArea(ctx context.Context, q ports.AreaQuery) (_ domain.MapData, err error) {
	defer obs.Time(ctx, p.log, "overpass.FetchArea")(&err)

	classes, err := FilterClasses(q.Classes)
	if err != nil {
		return domain.MapData{}, err
	}

	body := "data=" + url.QueryEscape(BuildQuery(q.Bound, classes, q.IncludePlaces))

	resp, err := p.client.DoWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, strings.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return domain.MapData{}, fmt.Errorf("overpass fetch: %w", err)
	}
	defer resp.Body.Close()

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return domain.MapData{}, fmt.Errorf("overpass fetch: decode response: %w", err)
	}

	return reduce(r.Elements, classes, q.IncludePlaces), nil
}

// reduce turns a raw node/way element list into road polylines and places.
// Ways with fewer than two resolvable nodes are dropped.
func reduce(elements []element, classes []string, includePlaces bool) domain.MapData {
	want := make(map[string]bool, len(classes))
	for _, c := range classes {
		want[c] = true
	}

	nodes := make(map[int64]orb.Point, len(elements))
	for _, el := range elements {
		if el.Type == "node" {
			nodes[el.ID] = orb.Point{el.Lon, el.Lat}
		}
	}

	out := domain.MapData{Roads: []domain.RoadFeature{}, Places: []domain.PlaceFeature{}}
	for _, el := range elements {
		switch el.Type {
		case "way":
			hw := el.Tags["highway"]
			if hw == "" || !want[hw] || restricted(el.Tags) {
				continue
			}
			line := make(orb.LineString, 0, len(el.Nodes))
			for _, id := range el.Nodes {
				if pt, ok := nodes[id]; ok {
					line = append(line, pt)
				}
			}
			if len(line) < 2 {
				continue
			}
			out.Roads = append(out.Roads, domain.RoadFeature{
				HighwayClass: hw,
				Points:       line,
				Name:         el.Tags["name"],
			})
		case "node":
			if !includePlaces || el.Tags["name"] == "" {
				continue
			}
			typ := el.Tags["amenity"]
			if typ == "" {
				typ = el.Tags["shop"]
			}
			if typ == "" {
				continue
			}
			out.Places = append(out.Places, domain.PlaceFeature{
				Name: el.Tags["name"],
				Type: typ,
				Lon:  el.Lon,
				Lat:  el.Lat,
			})
		}
	}
	return out
}

func restricted(tags map[string]string) bool {
	switch tags["access"] {
	case "private", "no":
		return true
	}
	return false
}

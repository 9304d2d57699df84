package market

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed stations.yaml
var defaultStations []byte

// DefaultSigma is used for stations without a calibrated base sigma.
const DefaultSigma = 3.5

const winterSigmaBump = 0.5

// horizonSigma scales sigma with forecast lead time in days. Horizons past
// three days use the three-day multiplier.
var horizonSigma = []float64{1.0, 1.0, 1.29, 1.57}

// Station is the reference data for one settlement station.
type Station struct {
	ID                 string          `yaml:"-" json:"id"`
	Name               string          `yaml:"name" json:"name"`
	City               string          `yaml:"city" json:"city"`
	LowCity            string          `yaml:"low_city" json:"low_city,omitempty"`
	ObservationStation string          `yaml:"observation_station" json:"observation_station"`
	Tier               string          `yaml:"tier" json:"tier"`
	Enabled            *bool           `yaml:"enabled" json:"enabled,omitempty"`
	BaseSigma          float64         `yaml:"base_sigma" json:"base_sigma"`
	BaseSigmaLow       float64         `yaml:"base_sigma_low" json:"base_sigma_low,omitempty"`
	RunningMAE         float64         `yaml:"running_mae" json:"running_mae,omitempty"`
	RunningN           int             `yaml:"running_n" json:"running_n,omitempty"`
	CorrelationGroup   string          `yaml:"correlation_group" json:"correlation_group,omitempty"`
	CalibrationMonths  []int           `yaml:"calibration_months" json:"calibration_months,omitempty"`
	ClimNormalHigh     map[int]float64 `yaml:"clim_normal_high" json:"clim_normal_high,omitempty"`
	ClimNormalLow      map[int]float64 `yaml:"clim_normal_low" json:"clim_normal_low,omitempty"`
}

// IsEnabled reports whether the station is enabled. Absent means enabled.
func (s Station) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Tradeable reports whether the station is on the trading whitelist.
func (s Station) Tradeable() bool {
	return s.IsEnabled() && (s.Tier == "A" || s.Tier == "B")
}

// Registry holds station reference data and the derived correlation
// adjacency. It is immutable after construction.
type Registry struct {
	stations   map[string]Station
	ids        []string
	correlated map[string]map[string]struct{}
	byCity     map[string]string
	byLowCity  map[string]string
}

type stationsFile struct {
	Stations map[string]Station `yaml:"stations"`
}

// DefaultRegistry returns the built-in station table.
func DefaultRegistry() *Registry {
	r, err := ParseRegistry(defaultStations)
	if err != nil {
		panic(fmt.Sprintf("built-in station table: %v", err))
	}
	return r
}

// LoadRegistry reads a station file. An empty path returns the built-in table.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stations file: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes a YAML station document and builds the registry.
func ParseRegistry(data []byte) (*Registry, error) {
	var f stationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse stations: %w", err)
	}
	if len(f.Stations) == 0 {
		return nil, fmt.Errorf("stations file has no stations")
	}
	list := make([]Station, 0, len(f.Stations))
	for id, s := range f.Stations {
		s.ID = id
		list = append(list, s)
	}
	return NewRegistry(list)
}

// NewRegistry builds a registry from station records. Correlation adjacency
// is derived once from correlation group membership.
func NewRegistry(stations []Station) (*Registry, error) {
	r := &Registry{
		stations:   make(map[string]Station, len(stations)),
		correlated: make(map[string]map[string]struct{}),
		byCity:     make(map[string]string),
		byLowCity:  make(map[string]string),
	}
	groups := make(map[string][]string)
	for _, s := range stations {
		s.ID = strings.ToUpper(strings.TrimSpace(s.ID))
		if s.ID == "" {
			return nil, fmt.Errorf("station with empty id")
		}
		if _, dup := r.stations[s.ID]; dup {
			return nil, fmt.Errorf("duplicate station %s", s.ID)
		}
		for _, m := range s.CalibrationMonths {
			if m < 1 || m > 12 {
				return nil, fmt.Errorf("station %s: calibration month %d out of range", s.ID, m)
			}
		}
		if s.ObservationStation == "" {
			s.ObservationStation = s.ID
		}
		r.stations[s.ID] = s
		r.ids = append(r.ids, s.ID)
		if s.City != "" {
			r.byCity[s.City] = s.ID
		}
		if s.LowCity != "" {
			r.byLowCity[s.LowCity] = s.ID
		}
		if s.CorrelationGroup != "" {
			groups[s.CorrelationGroup] = append(groups[s.CorrelationGroup], s.ID)
		}
	}
	sort.Strings(r.ids)

	for _, members := range groups {
		for _, a := range members {
			for _, b := range members {
				if a == b {
					continue
				}
				if r.correlated[a] == nil {
					r.correlated[a] = make(map[string]struct{})
				}
				r.correlated[a][b] = struct{}{}
			}
		}
	}
	return r, nil
}

// Get returns the station with the given id.
func (r *Registry) Get(id string) (Station, bool) {
	s, ok := r.stations[strings.ToUpper(id)]
	return s, ok
}

// IDs returns all station ids in sorted order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.ids)
}

// Tradeable reports whether id is on the whitelist.
func (r *Registry) Tradeable(id string) bool {
	s, ok := r.Get(id)
	return ok && s.Tradeable()
}

// TradeableIDs returns the whitelist in sorted order.
func (r *Registry) TradeableIDs() []string {
	var out []string
	for _, id := range r.ids {
		if r.stations[id].Tradeable() {
			out = append(out, id)
		}
	}
	return out
}

// Correlated reports whether a and b share a correlation group.
func (r *Registry) Correlated(a, b string) bool {
	_, ok := r.correlated[strings.ToUpper(a)][strings.ToUpper(b)]
	return ok
}

// CorrelatedWith returns the stations correlated with id, sorted.
func (r *Registry) CorrelatedWith(id string) []string {
	set := r.correlated[strings.ToUpper(id)]
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// ClimNormal returns the climatological normal high for the month.
func (r *Registry) ClimNormal(id string, month int) (float64, bool) {
	s, ok := r.Get(id)
	if !ok {
		return 0, false
	}
	v, ok := s.ClimNormalHigh[month]
	return v, ok
}

// InCalibrationWindow reports whether month is one the station's sigma was
// fit on. Stations that declare no months are treated as always calibrated.
func (r *Registry) InCalibrationWindow(id string, month int) bool {
	s, ok := r.Get(id)
	if !ok || len(s.CalibrationMonths) == 0 {
		return true
	}
	return slices.Contains(s.CalibrationMonths, month)
}

// EffectiveSigma returns the forecast uncertainty for a station's daily high
// in the given month at the given lead time, rounded to 0.1.
func (r *Registry) EffectiveSigma(id string, month, horizonDays int) float64 {
	return r.sigma(id, month, horizonDays, false)
}

// EffectiveSigmaLow is EffectiveSigma for daily low contracts.
func (r *Registry) EffectiveSigmaLow(id string, month, horizonDays int) float64 {
	return r.sigma(id, month, horizonDays, true)
}

func (r *Registry) sigma(id string, month, horizonDays int, low bool) float64 {
	s, ok := r.Get(id)
	if !ok {
		return DefaultSigma
	}
	sigma := s.BaseSigma
	if low && s.BaseSigmaLow > 0 {
		sigma = s.BaseSigmaLow
	}
	if sigma <= 0 {
		sigma = DefaultSigma
	}
	sigma = BayesianSigma(sigma, s.RunningMAE, s.RunningN)
	if isWinter(month) {
		sigma += winterSigmaBump
	}
	h := max(horizonDays, 0)
	if h >= len(horizonSigma) {
		h = len(horizonSigma) - 1
	}
	sigma *= horizonSigma[h]
	return math.Round(sigma*10) / 10
}

// BayesianSigma shrinks base toward the sigma implied by an observed MAE as
// the sample grows. Fewer than five observations leave base unchanged.
func BayesianSigma(base, observedMAE float64, n int) float64 {
	const nPrior = 30
	if observedMAE <= 0 || n < 5 {
		return base
	}
	observed := observedMAE * 1.253
	post := (nPrior*base + float64(n)*observed) / float64(nPrior+n)
	return math.Round(post*100) / 100
}

func isWinter(month int) bool {
	return month >= 11 || month <= 3
}

// Resolve maps a station id or exchange city code to a station id.
func (r *Registry) Resolve(arg string) (string, bool) {
	u := strings.ToUpper(strings.TrimSpace(arg))
	if u == "" {
		return "", false
	}
	if _, ok := r.stations[u]; ok {
		return u, true
	}
	if id, ok := r.byCity[u]; ok {
		return id, true
	}
	if id, ok := r.byLowCity[u]; ok {
		return id, true
	}
	return "", false
}

// StationForContract returns the station a weather contract settles against.
func (r *Registry) StationForContract(c Contract) (string, bool) {
	if c.City == "" {
		return "", false
	}
	if c.Low {
		id, ok := r.byLowCity[c.City]
		return id, ok
	}
	id, ok := r.byCity[c.City]
	return id, ok
}

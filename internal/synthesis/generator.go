package synthesis

import (
	"math/rand"
	"time"

	"agriprice/domain/dataset"
	"agriprice/ports"
)

// Regime is a two-state (monsoon / dry) base level with symmetric noise
type Regime struct {
	Monsoon    float64 `json:"monsoon"`
	Dry        float64 `json:"dry"`
	NoiseWidth float64 `json:"noise_width"`
}

// Seasonal is a month sinusoid around a base level with symmetric noise
type Seasonal struct {
	Base       float64 `json:"base"`
	Amplitude  float64 `json:"amplitude"`
	NoiseWidth float64 `json:"noise_width"`
}

// PriceModel holds the constants of the composed price formula
type PriceModel struct {
	Base              float64 `json:"base"`
	TrendBaseYear     int     `json:"trend_base_year"`
	TrendPerYear      float64 `json:"trend_per_year"`
	SeasonalAmplitude float64 `json:"seasonal_amplitude"`
	RainfallRef       float64 `json:"rainfall_ref"`
	RainfallSlope     float64 `json:"rainfall_slope"`
	ArrivalsRef       float64 `json:"arrivals_ref"`
	ArrivalsSlope     float64 `json:"arrivals_slope"`
	NoiseWidth        float64 `json:"noise_width"`
}

// GeneratorConfig configures the market data generator
type GeneratorConfig struct {
	StartYear             int                `json:"start_year"`
	EndYear               int                `json:"end_year"`
	Cities                []string           `json:"cities"`
	Varieties             []string           `json:"varieties"`
	SamplesPerCombination int                `json:"samples_per_combination"`
	SamplingRate          float64            `json:"sampling_rate"` // 1.0 = full enumeration
	MonsoonStart          int                `json:"monsoon_start"`
	MonsoonEnd            int                `json:"monsoon_end"`
	Seed                  int64              `json:"seed"` // 0 = time-based
	Rainfall              Regime             `json:"rainfall"`
	Arrivals              Regime             `json:"arrivals"`
	Temperature           Seasonal           `json:"temperature"`
	Price                 PriceModel         `json:"price"`
	VarietyPremium        map[string]float64 `json:"variety_premium"`
	CityFactor            map[string]float64 `json:"city_factor"`
	Bounds                dataset.Bounds     `json:"bounds"`
}

// DefaultCities are the tracked wholesale markets
var DefaultCities = []string{
	"Bangalore", "Mumbai", "Delhi", "Chennai", "Kolkata", "Hyderabad", "Pune", "Ahmedabad",
	"Jaipur", "Lucknow", "Kanpur", "Nagpur", "Indore", "Bhopal", "Visakhapatnam", "Patna",
	"Vadodara", "Ludhiana", "Agra", "Nashik", "Faridabad", "Meerut", "Rajkot", "Varanasi",
}

// DefaultVarieties are the tracked red chilli varieties
var DefaultVarieties = []string{
	"Guntur", "Teja", "Byadgi", "Kashmiri", "Sannam", "Wonder Hot",
	"Pusa Jwala", "Bhut Jolokia", "Kanthari", "Dhani", "Reshampatti", "Ellachipur",
}

// DefaultConfig returns the canonical generator settings
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		StartYear:             2005,
		EndYear:               2025,
		Cities:                append([]string(nil), DefaultCities...),
		Varieties:             append([]string(nil), DefaultVarieties...),
		SamplesPerCombination: 2,
		SamplingRate:          1.0,
		MonsoonStart:          6,
		MonsoonEnd:            9,
		Rainfall:              Regime{Monsoon: 150, Dry: 30, NoiseWidth: 60},
		Arrivals:              Regime{Monsoon: 1500, Dry: 3500, NoiseWidth: 1200},
		Temperature:           Seasonal{Base: 25, Amplitude: 8, NoiseWidth: 6},
		Price: PriceModel{
			Base:              24000,
			TrendBaseYear:     2010,
			TrendPerYear:      200,
			SeasonalAmplitude: 0.2,
			RainfallRef:       150,
			RainfallSlope:     8,
			ArrivalsRef:       3500,
			ArrivalsSlope:     0.8,
			NoiseWidth:        2000,
		},
		VarietyPremium: map[string]float64{
			"Guntur": 1.0, "Teja": 1.05, "Byadgi": 1.03, "Kashmiri": 1.08,
			"Sannam": 0.98, "Wonder Hot": 1.02, "Pusa Jwala": 1.04, "Bhut Jolokia": 1.10,
			"Kanthari": 1.04, "Dhani": 0.99, "Reshampatti": 1.03, "Ellachipur": 1.01,
		},
		CityFactor: map[string]float64{
			"Bangalore": 1.02, "Mumbai": 1.04, "Delhi": 1.03, "Chennai": 1.0,
			"Kolkata": 0.99, "Hyderabad": 1.01, "Pune": 1.02, "Ahmedabad": 1.02,
			"Jaipur": 1.01, "Lucknow": 0.99, "Kanpur": 0.98, "Nagpur": 1.0,
			"Indore": 1.01, "Bhopal": 0.99, "Visakhapatnam": 1.02, "Patna": 0.98,
			"Vadodara": 1.01, "Ludhiana": 1.03, "Agra": 0.99, "Nashik": 1.0,
			"Faridabad": 1.02, "Meerut": 0.99, "Rajkot": 1.01, "Varanasi": 0.98,
		},
		Bounds: dataset.DefaultBounds(),
	}
}

// CombinationCount is the number of observations full enumeration produces
func (c GeneratorConfig) CombinationCount() int {
	years := c.EndYear - c.StartYear + 1
	if years <= 0 || c.SamplesPerCombination <= 0 {
		return 0
	}
	return years * 12 * len(c.Cities) * len(c.Varieties) * c.SamplesPerCombination
}

// Generator synthesizes market observations
type Generator struct {
	config GeneratorConfig
	noise  ports.NoiseSource
}

// NewGenerator creates a generator seeded from config.Seed
func NewGenerator(config GeneratorConfig) *Generator {
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewGeneratorWithNoise(config, rand.New(rand.NewSource(seed)))
}

// NewGeneratorWithNoise creates a generator drawing noise from src
func NewGeneratorWithNoise(config GeneratorConfig, src ports.NoiseSource) *Generator {
	return &Generator{config: config, noise: src}
}

// Config returns the generator configuration
func (g *Generator) Config() GeneratorConfig {
	return g.config
}

// Generate produces the observation set plus its summary. Empty city or
// variety lists yield an empty set.
func (g *Generator) Generate() ([]dataset.Observation, dataset.Stats) {
	observations := make([]dataset.Observation, 0, g.config.CombinationCount())

	for year := g.config.StartYear; year <= g.config.EndYear; year++ {
		for month := 1; month <= 12; month++ {
			for _, city := range g.config.Cities {
				for _, variety := range g.config.Varieties {
					for sample := 0; sample < g.config.SamplesPerCombination; sample++ {
						if !g.keep() {
							continue
						}
						observations = append(observations, g.observation(year, month, city, variety))
					}
				}
			}
		}
	}

	return observations, dataset.Summarize(observations)
}

func (g *Generator) keep() bool {
	rate := g.config.SamplingRate
	if rate <= 0 || rate >= 1 {
		return true
	}
	return g.noise.Float64() < rate
}

// jitter returns symmetric noise in [-width/2, width/2)
func (g *Generator) jitter(width float64) float64 {
	return (g.noise.Float64() - 0.5) * width
}

func (g *Generator) observation(year, month int, city, variety string) dataset.Observation {
	cfg := g.config
	phase := dataset.SeasonalPhase(month)
	seasonalFactor := phase*cfg.Price.SeasonalAmplitude + 1
	monsoon := dataset.IsMonsoon(month, cfg.MonsoonStart, cfg.MonsoonEnd)

	rainfall := pick(monsoon, cfg.Rainfall) + g.jitter(cfg.Rainfall.NoiseWidth)
	temperature := cfg.Temperature.Base + phase*cfg.Temperature.Amplitude + g.jitter(cfg.Temperature.NoiseWidth)
	arrivals := pick(monsoon, cfg.Arrivals) + g.jitter(cfg.Arrivals.NoiseWidth)

	price := cfg.Price.Base + float64(year-cfg.Price.TrendBaseYear)*cfg.Price.TrendPerYear
	price *= seasonalFactor
	price += (cfg.Price.RainfallRef - rainfall) * cfg.Price.RainfallSlope
	price += (cfg.Price.ArrivalsRef - arrivals) * cfg.Price.ArrivalsSlope
	price *= factorOrOne(cfg.VarietyPremium, variety)
	price *= factorOrOne(cfg.CityFactor, city)
	price += g.jitter(cfg.Price.NoiseWidth)

	return dataset.Observation{
		Year:        year,
		Month:       month,
		City:        city,
		Variety:     variety,
		Rainfall:    max(0, rainfall),
		Arrivals:    max(cfg.Bounds.ArrivalsFloor, arrivals),
		Temperature: cfg.Bounds.ClampTemperature(temperature),
		Price:       cfg.Bounds.ClampPrice(price),
	}
}

func pick(monsoon bool, r Regime) float64 {
	if monsoon {
		return r.Monsoon
	}
	return r.Dry
}

func factorOrOne(factors map[string]float64, key string) float64 {
	if f, ok := factors[key]; ok && f > 0 {
		return f
	}
	return 1.0
}

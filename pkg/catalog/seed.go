package catalog

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SeedCity describes a city and the spot grid that covers it. Spots may be
// listed explicitly or generated as a lat/lng grid around the center.
type SeedCity struct {
	Name      string     `yaml:"name"`
	CenterLat float64    `yaml:"center_lat"`
	CenterLng float64    `yaml:"center_lng"`
	Zoom      int        `yaml:"zoom"`
	Grid      *SeedGrid  `yaml:"grid,omitempty"`
	Spots     []SeedSpot `yaml:"spots,omitempty"`
}

type SeedGrid struct {
	Steps   int     `yaml:"steps"`
	StepLat float64 `yaml:"step_lat"`
	StepLng float64 `yaml:"step_lng"`
}

type SeedSpot struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

type SeedFile struct {
	Cities []SeedCity `yaml:"cities"`
}

func LoadSeed(path string) (SeedFile, error) {
	content, err := ioutil.ReadFile(filepath.Clean(path))
	if err != nil {
		return SeedFile{}, err
	}
	var seed SeedFile
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return SeedFile{}, err
	}
	if len(seed.Cities) == 0 {
		return SeedFile{}, fmt.Errorf("spot seed has no cities")
	}
	return seed, nil
}

// ApplySeed creates the cities and spot grids from the seed file. Cities are
// upserted by name; spots are only created for cities that have none yet, so
// re-running the seed on a populated database is a no-op.
func ApplySeed(ctx context.Context, repo *SpotRepository, seed SeedFile) error {
	for _, sc := range seed.Cities {
		city, err := repo.UpsertCity(ctx, &City{
			Name:      sc.Name,
			CenterLat: sc.CenterLat,
			CenterLng: sc.CenterLng,
			Zoom:      sc.Zoom,
		})
		if err != nil {
			return fmt.Errorf("seeding city %s: %w", sc.Name, err)
		}

		existing, err := repo.CountByCity(ctx, city.ID)
		if err != nil {
			return err
		}
		if existing > 0 {
			continue
		}

		for _, spot := range sc.expand() {
			cityID := city.ID
			spot.CityID = &cityID
			if err := repo.Create(ctx, &spot); err != nil {
				return fmt.Errorf("seeding spot for %s: %w", sc.Name, err)
			}
		}
	}
	return nil
}

func (sc SeedCity) expand() []Spot {
	var spots []Spot
	for _, s := range sc.Spots {
		spots = append(spots, Spot{Latitude: s.Latitude, Longitude: s.Longitude})
	}
	if sc.Grid == nil {
		if len(spots) == 0 {
			spots = append(spots, Spot{Latitude: sc.CenterLat, Longitude: sc.CenterLng})
		}
		return spots
	}

	n := sc.Grid.Steps
	for i := -n; i <= n; i++ {
		for j := -n; j <= n; j++ {
			spots = append(spots, Spot{
				Latitude:  sc.CenterLat + sc.Grid.StepLat*float64(i),
				Longitude: sc.CenterLng + sc.Grid.StepLng*float64(j),
			})
		}
	}
	return spots
}

package catalog

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/signalsfoundry/leo-serving-planner/model"
)

const (
	earthMuKm3PerS2 = 398600.4418
	earthRadiusKm   = 6378.137
	secondsPerDay   = 86400.0
)

// LoadTLEFile reads a TLE catalog from path. Entries come in two- or
// three-line groups: an optional name line followed by element lines
// starting "1 " and "2 ".
func LoadTLEFile(path string) ([]model.Satellite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	defer f.Close()
	sats, err := ParseTLE(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: %q: %w", path, err)
	}
	return sats, nil
}

// ParseTLE decodes a TLE stream into catalog entries. Orbital elements the
// geographic stage needs (inclination, RAAN, apogee) are extracted from
// line 2; the raw lines are kept for the SGP4 propagator.
func ParseTLE(r io.Reader) ([]model.Satellite, error) {
	var sats []model.Satellite
	var name, line1 string

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "1 "):
			line1 = line
		case strings.HasPrefix(line, "2 "):
			if line1 == "" {
				return nil, fmt.Errorf("line %d: element line 2 without line 1", lineNo)
			}
			sat, err := satelliteFromTLE(name, line1, line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			sats = append(sats, sat)
			name, line1 = "", ""
		default:
			// Celestrak name lines sometimes carry a "0 " prefix.
			name = strings.TrimSpace(strings.TrimPrefix(line, "0 "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if line1 != "" {
		return nil, fmt.Errorf("dangling element line 1 at end of input")
	}
	return sats, nil
}

func satelliteFromTLE(name, line1, line2 string) (model.Satellite, error) {
	if len(line1) < 69 || len(line2) < 69 {
		return model.Satellite{}, fmt.Errorf("element lines too short (%d/%d chars)", len(line1), len(line2))
	}

	inclination, err := tleFloat(line2[8:16])
	if err != nil {
		return model.Satellite{}, fmt.Errorf("inclination: %w", err)
	}
	raan, err := tleFloat(line2[17:25])
	if err != nil {
		return model.Satellite{}, fmt.Errorf("raan: %w", err)
	}
	// Eccentricity is printed without its leading "0.".
	ecc, err := tleFloat("0." + strings.TrimSpace(line2[26:33]))
	if err != nil {
		return model.Satellite{}, fmt.Errorf("eccentricity: %w", err)
	}
	meanMotion, err := tleFloat(line2[52:63])
	if err != nil {
		return model.Satellite{}, fmt.Errorf("mean motion: %w", err)
	}
	if meanMotion <= 0 {
		return model.Satellite{}, fmt.Errorf("mean motion %.6f not positive", meanMotion)
	}

	catnum := strings.TrimSpace(line1[2:7])
	id := catnum
	if name != "" {
		id = name
	}

	return model.Satellite{
		ID:             id,
		Name:           name,
		Constellation:  inferConstellation(name),
		InclinationDeg: inclination,
		RAANDeg:        raan,
		ApogeeKm:       apogeeKm(meanMotion, ecc),
		TLELine1:       line1,
		TLELine2:       line2,
	}, nil
}

// apogeeKm derives the apogee altitude from the mean motion (rev/day) and
// eccentricity via the vis-viva semi-major axis.
func apogeeKm(meanMotionRevPerDay, eccentricity float64) float64 {
	n := meanMotionRevPerDay * 2 * math.Pi / secondsPerDay
	semiMajor := math.Cbrt(earthMuKm3PerS2 / (n * n))
	return semiMajor*(1+eccentricity) - earthRadiusKm
}

func inferConstellation(name string) model.Constellation {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "STARLINK"):
		return model.ConstellationStarlink
	case strings.Contains(upper, "ONEWEB"):
		return model.ConstellationOneWeb
	default:
		return model.ConstellationOther
	}
}

func tleFloat(field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", field, err)
	}
	return v, nil
}

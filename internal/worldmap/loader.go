package worldmap

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseMap reads the landmark interchange format: one landmark per line,
// whitespace-separated "x y id". Blank lines are skipped; a malformed
// line is an error, not a skip, so a truncated or corrupted map file
// fails loudly instead of silently shrinking the map.
func ParseMap(r io.Reader) (*Map, error) {
	m := &Map{}
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields (x y id), got %d", lineNum, len(fields))
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad x value %q: %w", lineNum, fields[0], err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad y value %q: %w", lineNum, fields[1], err)
		}
		id, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad landmark id %q: %w", lineNum, fields[2], err)
		}
		m.Landmarks = append(m.Landmarks, Landmark{ID: id, X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read map data: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadMapFile reads a landmark map from a file on disk.
func LoadMapFile(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open map file: %w", err)
	}
	defer f.Close()

	m, err := ParseMap(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse map file %s: %w", path, err)
	}
	return m, nil
}

package mesh

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNoScanners is returned when an input contains no scanner reports.
var ErrNoScanners = errors.New("no scanners in input")

// ParseError describes a malformed line in a scanner report.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

const scannerHeaderPrefix = "--- scanner"

// ParseScannerFile reads and parses a scanner report file
func ParseScannerFile(path string) ([]Scanner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return ParseScanners(string(data))
}

// ParseScanners parses scanner reports: a "--- scanner N ---" header
// followed by one "x,y,z" beacon per line, reports separated by blank lines.
// Scanner IDs follow input order; the number in the header is not used.
func ParseScanners(text string) ([]Scanner, error) {
	var scanners []Scanner
	var current *Scanner

	sc := bufio.NewScanner(strings.NewReader(text))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())

		switch {
		case line == "":
			current = nil
		case strings.HasPrefix(line, scannerHeaderPrefix):
			scanners = append(scanners, Scanner{ID: len(scanners), Beacons: []Coordinate{}})
			current = &scanners[len(scanners)-1]
		default:
			if current == nil {
				return nil, &ParseError{Line: lineNo, Msg: "beacon outside a scanner block"}
			}
			c, err := parseCoordinate(line)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Msg: err.Error()}
			}
			current.Beacons = append(current.Beacons, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scanning input: %w", err)
	}

	if len(scanners) == 0 {
		return nil, ErrNoScanners
	}
	return scanners, nil
}

func parseCoordinate(line string) (Coordinate, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return Coordinate{}, fmt.Errorf("want 3 comma-separated values, got %d", len(parts))
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Coordinate{}, fmt.Errorf("invalid integer %q", p)
		}
		v[i] = n
	}
	return Coordinate{X: v[0], Y: v[1], Z: v[2]}, nil
}

// FormatScanners renders scanners back into the input text format.
func FormatScanners(scanners []Scanner) string {
	var b strings.Builder
	for i, s := range scanners {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %d ---\n", scannerHeaderPrefix, s.ID)
		for _, c := range s.Beacons {
			b.WriteString(c.String())
			b.WriteByte('\n')
		}
	}
	return b.String()
}

package extract

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// loadTable reads a whitespace-separated numeric text file as one float row
// per line, skipping the first skipHeader lines. Errors name the file and
// the underlying cause.
func loadTable(path string, skipHeader int) ([][]float64, error) {
	lines, err := readLines(path, skipHeader)
	if err != nil {
		return nil, err
	}
	table := make([][]float64, 0, len(lines))
	for i, fields := range lines {
		row := make([]float64, len(fields))
		for j, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("read table %s: line %d: %w", path, i+skipHeader+1, err)
			}
			row[j] = v
		}
		table = append(table, row)
	}
	return table, nil
}

// loadVector reads every numeric token of a text file into one flat series,
// regardless of line layout (b-value files come as a single long row).
func loadVector(path string) ([]float64, error) {
	table, err := loadTable(path, 0)
	if err != nil {
		return nil, err
	}
	var flat []float64
	for _, row := range table {
		flat = append(flat, row...)
	}
	return flat, nil
}

// loadIntVector reads a flat series of integers.
func loadIntVector(path string) ([]int, error) {
	flat, err := loadVector(path)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(flat))
	for i, v := range flat {
		n := int(v)
		if float64(n) != v {
			return nil, fmt.Errorf("read table %s: value %v is not an integer", path, v)
		}
		out[i] = n
	}
	return out, nil
}

// loadIntTable reads an integer table, one row per line.
func loadIntTable(path string) ([][]int, error) {
	table, err := loadTable(path, 0)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(table))
	for i, row := range table {
		out[i] = make([]int, len(row))
		for j, v := range row {
			n := int(v)
			if float64(n) != v {
				return nil, fmt.Errorf("read table %s: value %v is not an integer", path, v)
			}
			out[i][j] = n
		}
	}
	return out, nil
}

// readLines splits a text file into non-empty whitespace-separated rows.
func readLines(path string, skipHeader int) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	defer f.Close()

	var lines [][]string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		lineNo++
		if lineNo <= skipHeader {
			continue
		}
		lines = append(lines, strings.Fields(line))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	return lines, nil
}

package drift

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Source supplies transition tables indexed [next][current].
type Source interface {
	Table(Params) (*Grid[float64], error)
}

// FileName is the table file name for params.
func FileName(p Params) string {
	name := fmt.Sprintf("prob_table_r%.4e_v%.4e_d%d_s%d", p.PassRatio, p.DriftStddev, p.MaxDrift, p.NumSegments)
	if p.OffsetRate != 0 {
		name += fmt.Sprintf("_o%.4e", p.OffsetRate)
	}
	return name + ".dat"
}

// FileSource reads precomputed tables from Dir.
type FileSource struct {
	Dir string
}

// Path returns the table file for p under Dir.
func (s FileSource) Path(p Params) string { return filepath.Join(s.Dir, FileName(p)) }

// Table reads the table for p. A missing file is ErrTableNotFound.
func (s FileSource) Table(p Params) (*Grid[float64], error) {
	path := s.Path(p)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTableNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	g, err := ReadTable(f, p.MaxSegment())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// ReadTable parses 2m+1 whitespace separated rows. Row i of the text is the
// current state i-m, column j the next state j-m.
func ReadTable(r io.Reader, m int) (*Grid[float64], error) {
	g := NewGrid[float64](m)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	sc.Split(bufio.ScanWords)
	for cur := -m; cur <= m; cur++ {
		for next := -m; next <= m; next++ {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return nil, err
				}
				return nil, fmt.Errorf("%w: short table, want %d values", ErrMalformedTable, g.Width()*g.Width())
			}
			p, err := strconv.ParseFloat(sc.Text(), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedTable, err)
			}
			g.Set(next, cur, p)
		}
	}
	return g, nil
}

// WriteTable writes g in the format ReadTable accepts.
func WriteTable(w io.Writer, g *Grid[float64]) error {
	bw := bufio.NewWriter(w)
	m := g.Bound()
	for cur := -m; cur <= m; cur++ {
		for next := -m; next <= m; next++ {
			if next > -m {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(g.At(next, cur), 'e', 10, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// SaveTable writes the table for p into dir and returns its path.
func SaveTable(dir string, p Params, g *Grid[float64]) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(p))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteTable(f, g); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}

// GeneratorSource computes tables on demand instead of reading them.
type GeneratorSource struct{}

// Table generates the table for p.
func (GeneratorSource) Table(p Params) (*Grid[float64], error) { return Generate(p), nil }

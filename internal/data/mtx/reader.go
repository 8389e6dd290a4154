// Package mtx loads 10x Genomics-style expression directories: a
// MatrixMarket matrix (genes x cells, transposed to observations x genes
// on load) plus feature, barcode and per-cell annotation tables. Files may
// be stored plain or gzip-compressed.
package mtx

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/generank/server/internal/matrix"
)

// Bundle is the loaded content of one expression directory.
type Bundle struct {
	Matrix   *matrix.CSR // observations x genes
	Genes    []string
	Barcodes []string
	// Obs maps annotation column names to per-observation categorical
	// values (from obs.tsv), used as groupby label sources.
	Obs map[string][]string
}

// Load reads matrix.mtx, features.tsv, barcodes.tsv and (optionally)
// obs.tsv from dir. Each file may also exist with a .gz suffix.
func Load(dir string) (*Bundle, error) {
	genes, err := loadFeatures(filepath.Join(dir, "features.tsv"))
	if err != nil {
		return nil, fmt.Errorf("failed to load features: %w", err)
	}

	barcodes, err := loadLines(filepath.Join(dir, "barcodes.tsv"))
	if err != nil {
		return nil, fmt.Errorf("failed to load barcodes: %w", err)
	}

	m, err := loadMatrix(filepath.Join(dir, "matrix.mtx"), len(genes), len(barcodes))
	if err != nil {
		return nil, fmt.Errorf("failed to load matrix: %w", err)
	}

	obs, err := loadObs(filepath.Join(dir, "obs.tsv"), len(barcodes))
	if err != nil {
		return nil, fmt.Errorf("failed to load obs annotations: %w", err)
	}

	return &Bundle{Matrix: m, Genes: genes, Barcodes: barcodes, Obs: obs}, nil
}

// open opens path, falling back to path+".gz" with transparent
// decompression.
func open(path string) (io.ReadCloser, error) {
	if f, err := os.Open(path); err == nil {
		return f, nil
	}
	f, err := os.Open(path + ".gz")
	if err != nil {
		return nil, fmt.Errorf("neither %s nor %s.gz exists", path, path)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to open gzip stream %s.gz: %w", path, err)
	}
	return &gzipFile{zr: zr, f: f}, nil
}

type gzipFile struct {
	zr *gzip.Reader
	f  *os.File
}

func (g *gzipFile) Read(p []byte) (int, error) { return g.zr.Read(p) }
func (g *gzipFile) Close() error {
	g.zr.Close()
	return g.f.Close()
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	return sc
}

// loadFeatures reads feature names: one feature per line, tab-separated
// columns (10x layout is id, name, type); the name column is preferred.
func loadFeatures(path string) ([]string, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var genes []string
	sc := newScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		name := fields[0]
		if len(fields) > 1 && fields[1] != "" {
			name = fields[1]
		}
		genes = append(genes, name)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(genes) == 0 {
		return nil, fmt.Errorf("no features in %s", path)
	}
	return genes, nil
}

func loadLines(path string) ([]string, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var lines []string
	sc := newScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// loadMatrix parses a MatrixMarket coordinate file holding genes in rows
// and cells in columns, and returns the transposed observations x genes
// CSR matrix.
func loadMatrix(path string, nGenes, nCells int) (*matrix.CSR, error) {
	r, err := open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	sc := newScanner(r)

	// Header: %%MatrixMarket matrix coordinate <field> general
	if !sc.Scan() {
		return nil, fmt.Errorf("empty matrix file %s", path)
	}
	header := strings.Fields(sc.Text())
	if len(header) < 4 || header[0] != "%%MatrixMarket" || header[1] != "matrix" || header[2] != "coordinate" {
		return nil, fmt.Errorf("unsupported MatrixMarket header: %s", sc.Text())
	}

	// Skip comments, find the size line.
	var rows, cols, nnz int
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "%") {
			continue
		}
		if _, err := fmt.Sscan(line, &rows, &cols, &nnz); err != nil {
			return nil, fmt.Errorf("invalid size line %q: %w", line, err)
		}
		break
	}
	if rows != nGenes || cols != nCells {
		return nil, fmt.Errorf("matrix is %dx%d, expected %d genes x %d cells", rows, cols, nGenes, nCells)
	}

	// Entries are gene x cell; bucket by cell row for the transpose.
	type entry struct {
		gene int
		val  float64
	}
	byCell := make([][]entry, nCells)
	seen := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("invalid matrix entry %q", line)
		}
		gene, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("invalid gene index %q: %w", fields[0], err)
		}
		cell, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("invalid cell index %q: %w", fields[1], err)
		}
		val, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", fields[2], err)
		}
		if gene < 1 || gene > nGenes || cell < 1 || cell > nCells {
			return nil, fmt.Errorf("entry (%d,%d) out of range", gene, cell)
		}
		byCell[cell-1] = append(byCell[cell-1], entry{gene: gene - 1, val: val})
		seen++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if seen != nnz {
		return nil, fmt.Errorf("matrix has %d entries, header declared %d", seen, nnz)
	}

	indptr := make([]int, nCells+1)
	indices := make([]int, 0, nnz)
	data := make([]float64, 0, nnz)
	for c, entries := range byCell {
		sort.Slice(entries, func(a, b int) bool { return entries[a].gene < entries[b].gene })
		for _, e := range entries {
			indices = append(indices, e.gene)
			data = append(data, e.val)
		}
		indptr[c+1] = len(indices)
	}
	return matrix.NewCSR(nCells, nGenes, indptr, indices, data), nil
}

// loadObs reads the optional per-cell annotation table: a header line of
// column names (first column is the barcode) followed by one row per
// observation. Returns nil when the file is absent.
func loadObs(path string, nObs int) (map[string][]string, error) {
	r, err := open(path)
	if err != nil {
		return nil, nil // optional
	}
	defer r.Close()

	sc := newScanner(r)
	if !sc.Scan() {
		return nil, fmt.Errorf("empty annotation file %s", path)
	}
	header := strings.Split(strings.TrimRight(sc.Text(), "\r"), "\t")
	if len(header) < 2 {
		return nil, fmt.Errorf("annotation file %s has no label columns", path)
	}
	cols := header[1:]

	obs := make(map[string][]string, len(cols))
	for _, c := range cols {
		obs[c] = make([]string, 0, nObs)
	}

	rows := 0
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(header) {
			return nil, fmt.Errorf("annotation row %d has %d fields, header has %d", rows+1, len(fields), len(header))
		}
		for i, c := range cols {
			obs[c] = append(obs[c], fields[i+1])
		}
		rows++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if rows != nObs {
		return nil, fmt.Errorf("annotation file has %d rows, expected %d observations", rows, nObs)
	}
	return obs, nil
}

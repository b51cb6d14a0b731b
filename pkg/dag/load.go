package dag

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/bohm/binstretch/pkg/game"
	"github.com/bohm/binstretch/pkg/heur"
)

// ErrMalformedDag wraps every parse failure; the message carries the
// offending line number.
var ErrMalformedDag = errors.New("malformed dag input")

// LoadResult is a parsed file: the graph plus the initial item
// sequence from the header. Vertices carry OldName (the file ids);
// when the file lacks binconf attributes the configurations must be
// reconstructed with PopulateFromRoot before the graph is usable.
type LoadResult struct {
	Dag          *Dag
	InitialItems []int
	Partial      bool
}

type lineKind int

const (
	lineAdvVertex lineKind = iota
	lineAlgVertex
	lineAdvEdge
	lineAlgEdge
	lineHeader
	lineOverlap
	lineInitial
	lineFooter
	lineOther
)

func recognize(line string) lineKind {
	switch {
	case strings.Contains(line, "player=adv"):
		return lineAdvVertex
	case strings.Contains(line, "player=alg"):
		return lineAlgVertex
	case strings.Contains(line, "->") && strings.Contains(line, "next"):
		return lineAdvEdge
	case strings.Contains(line, "->") && strings.Contains(line, "bin"):
		return lineAlgEdge
	case strings.Contains(line, "strict digraph"):
		return lineHeader
	case strings.Contains(line, "overlap"):
		return lineOverlap
	case strings.Contains(line, "initial:"):
		return lineInitial
	case strings.TrimSpace(line) == "}":
		return lineFooter
	default:
		return lineOther
	}
}

var attrRe = regexp.MustCompile(`(\w+)=(?:"([^"]*)"|([^,\]\s]+))`)

// parseAttrs extracts key=value and key="value" pairs from a vertex
// line.
func parseAttrs(line string) map[string]string {
	out := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(line, -1) {
		if m[2] != "" {
			out[m[1]] = m[2]
		} else {
			out[m[1]] = m[3]
		}
	}
	return out
}

func lineErr(lineno int, format string, args ...interface{}) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedDag, lineno, fmt.Sprintf(format, args...))
}

// Load parses the DOT-like text format written by Save. Vertices and
// edges may appear in any order after the header.
func Load(z *game.Tables, r io.Reader) (*LoadResult, error) {
	res := &LoadResult{Dag: New(z)}
	advByName := make(map[int]*AdvVertex)
	algByName := make(map[int]*AlgVertex)
	type pendingEdge struct {
		from, to, label int
		alg             bool
		lineno          int
	}
	var edges []pendingEdge

	sawHeader := false
	sawBinconfs := false
	sawVertices := false
	var firstAdv, firstSapling *AdvVertex

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch recognize(line) {
		case lineHeader:
			sawHeader = true
		case lineOverlap, lineFooter:
			// Expected and harmless.
		case lineInitial:
			count, items, err := parseInitial(line)
			if err != nil {
				return nil, lineErr(lineno, "%v", err)
			}
			if count != len(items) {
				return nil, lineErr(lineno, "initial line announces %d items but lists %d", count, len(items))
			}
			res.InitialItems = items
		case lineAdvVertex:
			name, v, hasBC, err := parseAdvVertex(z, line)
			if err != nil {
				return nil, lineErr(lineno, "%v", err)
			}
			if _, dup := advByName[name]; dup {
				return nil, lineErr(lineno, "duplicate adversary vertex %d", name)
			}
			res.Dag.vertexCounter++
			v.ID = res.Dag.vertexCounter
			res.Dag.AdvByID[v.ID] = v
			advByName[name] = v
			sawVertices = true
			if hasBC {
				sawBinconfs = true
				res.Dag.AdvByHash[v.BC.StateHash()] = v
			}
			if firstAdv == nil {
				firstAdv = v
			}
			if firstSapling == nil && v.Sapling {
				firstSapling = v
			}
		case lineAlgVertex:
			name, v, hasBC, err := parseAlgVertex(z, line)
			if err != nil {
				return nil, lineErr(lineno, "%v", err)
			}
			if _, dup := algByName[name]; dup {
				return nil, lineErr(lineno, "duplicate algorithm vertex %d", name)
			}
			res.Dag.vertexCounter++
			v.ID = res.Dag.vertexCounter
			res.Dag.AlgByID[v.ID] = v
			algByName[name] = v
			sawVertices = true
			if hasBC {
				res.Dag.AlgByHash[v.BC.AlgHash(v.NextItem)] = v
			}
		case lineAdvEdge:
			var from, to, next int
			if _, err := fmt.Sscanf(line, "%d -> %d [next=%d]", &from, &to, &next); err != nil {
				return nil, lineErr(lineno, "cannot parse adversary edge: %v", err)
			}
			edges = append(edges, pendingEdge{from: from, to: to, label: next, lineno: lineno})
		case lineAlgEdge:
			var from, to, bin int
			if _, err := fmt.Sscanf(line, "%d -> %d [bin=%d]", &from, &to, &bin); err != nil {
				return nil, lineErr(lineno, "cannot parse algorithm edge: %v", err)
			}
			edges = append(edges, pendingEdge{from: from, to: to, label: bin, alg: true, lineno: lineno})
		case lineOther:
			return nil, lineErr(lineno, "unrecognizable line %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDag, err)
	}
	if !sawHeader {
		return nil, fmt.Errorf("%w: missing digraph header", ErrMalformedDag)
	}

	for _, pe := range edges {
		if pe.alg {
			from, ok := algByName[pe.from]
			if !ok {
				return nil, lineErr(pe.lineno, "edge from unknown algorithm vertex %d", pe.from)
			}
			to, ok := advByName[pe.to]
			if !ok {
				return nil, lineErr(pe.lineno, "edge to unknown adversary vertex %d", pe.to)
			}
			res.Dag.AddAlgOutedge(from, to, pe.label)
		} else {
			from, ok := advByName[pe.from]
			if !ok {
				return nil, lineErr(pe.lineno, "edge from unknown adversary vertex %d", pe.from)
			}
			to, ok := algByName[pe.to]
			if !ok {
				return nil, lineErr(pe.lineno, "edge to unknown algorithm vertex %d", pe.to)
			}
			res.Dag.AddAdvOutedge(from, to, pe.label)
		}
	}

	// The root is the vertex nothing points to; a file holding a single
	// sapling subtree marks it explicitly, and anything else falls back
	// to the first vertex of the file.
	res.Dag.Root = firstAdv
	if firstSapling != nil {
		res.Dag.Root = firstSapling
	}
	orphans := 0
	for _, v := range advByName {
		if len(v.In) == 0 {
			orphans++
		}
	}
	if orphans == 1 {
		for _, v := range advByName {
			if len(v.In) == 0 {
				res.Dag.Root = v
			}
		}
	}

	// Algorithm vertices are saved without their configurations: they
	// share their parent's, with the edge-labelled item pending.
	for _, v := range res.Dag.AdvByID {
		if v.BC == nil {
			continue
		}
		for _, e := range v.Out {
			if e.To.BC == nil {
				e.To.BC = v.BC.Clone()
				res.Dag.AlgByHash[e.To.BC.AlgHash(e.To.NextItem)] = e.To
			}
		}
	}

	res.Partial = sawVertices && !sawBinconfs
	return res, nil
}

// LoadFile parses a saved graph from a file path.
func LoadFile(z *game.Tables, path string) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dag: loading %s: %w", path, err)
	}
	defer f.Close()
	return Load(z, f)
}

func parseInitial(line string) (count int, items []int, err error) {
	fields := strings.Fields(strings.ReplaceAll(line, "initial:", "initial: "))
	if len(fields) < 2 || fields[1] != "initial:" {
		return 0, nil, fmt.Errorf("cannot parse initial-item line %q", line)
	}
	count, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, nil, fmt.Errorf("bad initial count %q", fields[0])
	}
	for _, f := range fields[2:] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return 0, nil, fmt.Errorf("bad initial item %q", f)
		}
		items = append(items, n)
	}
	return count, items, nil
}

func parseName(line string) (int, error) {
	var name int
	if _, err := fmt.Sscanf(strings.TrimSpace(line), "%d", &name); err != nil {
		return 0, fmt.Errorf("vertex line without a leading id")
	}
	return name, nil
}

func parseAdvVertex(z *game.Tables, line string) (name int, v *AdvVertex, hasBC bool, err error) {
	name, err = parseName(line)
	if err != nil {
		return 0, nil, false, err
	}
	attrs := parseAttrs(line)
	v = &AdvVertex{Win: game.Uncertain, OldName: name}
	if s, ok := attrs["binconf"]; ok {
		v.BC, err = game.ParseBinConf(z, s)
		if err != nil {
			return 0, nil, false, err
		}
		hasBC = true
	}
	if attrs["task"] == "true" {
		v.Task = true
		v.Leaf = LeafBoundary
	}
	if attrs["sapling"] == "true" {
		v.Sapling = true
	}
	if s, ok := attrs["heur"]; ok {
		v.HeurStrategy, err = heur.ParseStrategy(s)
		if err != nil {
			return 0, nil, false, err
		}
		v.Leaf = LeafHeuristical
	}
	return name, v, hasBC, nil
}

func parseAlgVertex(z *game.Tables, line string) (name int, v *AlgVertex, hasBC bool, err error) {
	name, err = parseName(line)
	if err != nil {
		return 0, nil, false, err
	}
	attrs := parseAttrs(line)
	v = &AlgVertex{Win: game.Uncertain, OldName: name}
	next, ok := attrs["next_item"]
	if ok {
		v.NextItem, err = strconv.Atoi(next)
		if err != nil {
			return 0, nil, false, fmt.Errorf("bad next_item %q", next)
		}
	}
	if s, ok := attrs["binconf"]; ok {
		v.BC, err = game.ParseBinConf(z, s)
		if err != nil {
			return 0, nil, false, err
		}
		hasBC = true
	}
	v.Optimal = attrs["optimal"]
	return name, v, hasBC, nil
}

// PopulateFromRoot reconstructs the bin configurations of a partial
// graph by forward simulation from the given root configuration:
// adversary edges carry the next item, algorithm edges the target bin.
// Missing next_item attributes are filled in from the incoming edges.
func (res *LoadResult) PopulateFromRoot(rootBC *game.BinConf) error {
	d := res.Dag
	if d.Root == nil {
		return fmt.Errorf("%w: no root vertex", ErrMalformedDag)
	}
	d.Root.BC = rootBC.Clone()
	d.ClearVisited()
	if err := d.populateAdv(d.Root); err != nil {
		return err
	}
	// Rebuild the hash indices now that configurations exist.
	for _, v := range d.AdvByID {
		if v.BC != nil {
			d.AdvByHash[v.BC.StateHash()] = v
		}
	}
	for _, v := range d.AlgByID {
		if v.BC != nil {
			d.AlgByHash[v.BC.AlgHash(v.NextItem)] = v
		}
	}
	res.Partial = false
	return nil
}

func (d *Dag) populateAdv(v *AdvVertex) error {
	if v.Visited {
		return nil
	}
	v.Visited = true
	if v.BC == nil {
		return fmt.Errorf("%w: adversary vertex %d has no configuration", ErrMalformedDag, v.OldName)
	}
	for _, e := range v.Out {
		child := e.To
		if child.BC == nil {
			child.BC = v.BC.Clone()
			child.NextItem = e.Item
		}
		if err := d.populateAlg(child); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dag) populateAlg(v *AlgVertex) error {
	if v.Visited {
		return nil
	}
	v.Visited = true
	for _, e := range v.Out {
		child := e.To
		if child.BC == nil {
			bc := v.BC.Clone()
			p := bc.Tables().Params()
			if e.TargetBin < 1 || e.TargetBin > p.Bins {
				return fmt.Errorf("%w: algorithm vertex %d places into bin %d", ErrMalformedDag, v.OldName, e.TargetBin)
			}
			bc.AssignAndRehash(v.NextItem, e.TargetBin)
			child.BC = bc
		}
		if err := d.populateAdv(child); err != nil {
			return err
		}
	}
	return nil
}

package dag

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Saving the graph in the extended DOT-like text format. The format is
// consumed by the verifier and the painter; the loader in this package
// reads it back.

// Save writes the subgraph reachable from the root to w: one header
// line, the overlap directive, the initial-item line, then vertices
// (edges of each vertex directly after it, so edges precede the deeper
// vertex descriptions).
func (d *Dag) Save(w io.Writer, initialItems []int) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "strict digraph binstretch_dag {\n")
	fmt.Fprintf(bw, "overlap = none;\n")
	fmt.Fprintf(bw, "%d initial:", len(initialItems))
	for _, it := range initialItems {
		fmt.Fprintf(bw, " %d", it)
	}
	fmt.Fprintf(bw, "\n")

	d.ClearVisited()
	if d.Root != nil {
		d.saveAdvRec(bw, d.Root)
	}
	fmt.Fprintf(bw, "}\n")
	return bw.Flush()
}

// SaveFile writes the graph to a file path.
func (d *Dag) SaveFile(path string, initialItems []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dag: saving %s: %w", path, err)
	}
	defer f.Close()
	if err := d.Save(f, initialItems); err != nil {
		return fmt.Errorf("dag: saving %s: %w", path, err)
	}
	return nil
}

func (d *Dag) saveAdvRec(w io.Writer, v *AdvVertex) {
	if v.Visited {
		return
	}
	v.Visited = true
	v.write(w)
	for _, e := range v.Out {
		fmt.Fprintf(w, "%d -> %d [next=%d]\n", v.ID, e.To.ID, e.Item)
	}
	for _, e := range v.Out {
		d.saveAlgRec(w, e.To)
	}
}

func (d *Dag) saveAlgRec(w io.Writer, v *AlgVertex) {
	if v.Visited {
		return
	}
	v.Visited = true
	v.write(w)
	for _, e := range v.Out {
		fmt.Fprintf(w, "%d -> %d [bin=%d]\n", v.ID, e.To.ID, e.TargetBin)
	}
	for _, e := range v.Out {
		d.saveAdvRec(w, e.To)
	}
}

func (v *AdvVertex) write(w io.Writer) {
	fmt.Fprintf(w, "%d [player=adv,loads=\"%s\",binconf=\"%s\"", v.ID, v.BC.LoadString(), v.BC.String())
	if v.Task {
		fmt.Fprintf(w, ",task=true")
	} else if v.Sapling {
		fmt.Fprintf(w, ",sapling=true")
	}
	if v.HeurStrategy != nil {
		fmt.Fprintf(w, ",heur=\"%s\"", v.HeurStrategy.String())
	}
	fmt.Fprintf(w, "];\n")
}

func (v *AlgVertex) write(w io.Writer) {
	fmt.Fprintf(w, "%d [player=alg,loads=\"%s\",next_item=%d", v.ID, v.BC.LoadString(), v.NextItem)
	if v.Optimal != "" {
		fmt.Fprintf(w, ",optimal=\"%s\"", v.Optimal)
	}
	fmt.Fprintf(w, "];\n")
}

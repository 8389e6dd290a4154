package rank

import (
	"errors"
	"testing"

	"github.com/generank/server/internal/matrix"
)

func TestLogRegBinary(t *testing.T) {
	res, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{
		Method: MethodLogReg,
		NGenes: 3,
	})
	if err != nil {
		t.Fatalf("RankGenesGroups: %v", err)
	}

	// Exactly one column for two groups: the shared binary coefficient
	// vector, named after the non-reference (second) group.
	if len(res.Groups) != 1 {
		t.Fatalf("got %d columns, want 1 for binary logreg", len(res.Groups))
	}
	if res.Groups[0].Group != "B" {
		t.Errorf("column group = %s, want B", res.Groups[0].Group)
	}
	if res.HasStats {
		t.Error("logreg result should not carry fold-change or p-values")
	}

	// B is the positive class and expresses g2, so g2's coefficient is
	// positive and leads the ranking; g0's is negative.
	b := res.Group("B")
	if b.Genes[0].Name != "g2" {
		t.Errorf("top gene = %s, want g2", b.Genes[0].Name)
	}
	if b.Genes[0].Score <= 0 {
		t.Errorf("g2 coefficient = %v, want > 0", b.Genes[0].Score)
	}
	last := b.Genes[len(b.Genes)-1]
	if last.Name != "g0" || last.Score >= 0 {
		t.Errorf("bottom gene = %s (%v), want g0 with a negative coefficient", last.Name, last.Score)
	}
}

func TestLogRegMultiClass(t *testing.T) {
	labels := NewLabels([]string{"A", "A", "B", "B", "C", "C"})
	values := []float64{
		9, 0, 0,
		8, 0, 1,
		0, 9, 0,
		1, 8, 0,
		0, 0, 9,
		0, 1, 8,
	}
	m := matrix.NewDense(6, 3, values)
	genes := []string{"g0", "g1", "g2"}

	res, err := RankGenesGroups(m, genes, labels, Config{Method: MethodLogReg, NGenes: 3})
	if err != nil {
		t.Fatalf("RankGenesGroups: %v", err)
	}

	if len(res.Groups) != 3 {
		t.Fatalf("got %d columns, want one per group", len(res.Groups))
	}
	wantTop := map[string]string{"A": "g0", "B": "g1", "C": "g2"}
	for group, gene := range wantTop {
		g := res.Group(group)
		if g == nil {
			t.Fatalf("missing group %s", group)
		}
		if g.Genes[0].Name != gene {
			t.Errorf("group %s top gene = %s, want %s", group, g.Genes[0].Name, gene)
		}
	}
}

func TestLogRegSingleGroup(t *testing.T) {
	_, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{
		Method: MethodLogReg,
		Groups: []string{"A"},
	})
	if !errors.Is(err, ErrSingleGroup) {
		t.Fatalf("err = %v, want ErrSingleGroup", err)
	}
}

func TestLogRegBadPenalty(t *testing.T) {
	_, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{
		Method: MethodLogReg,
		LogReg: LogRegOptions{Penalty: "l1"},
	})
	if err == nil {
		t.Fatal("expected an error for an unsupported penalty")
	}
}

func TestLogRegSparseDenseAgree(t *testing.T) {
	cfg := Config{Method: MethodLogReg, NGenes: 3}
	dres, err := RankGenesGroups(testDense(), testGenes, testLabels, cfg)
	if err != nil {
		t.Fatalf("dense: %v", err)
	}
	sres, err := RankGenesGroups(testCSR(), testGenes, testLabels, cfg)
	if err != nil {
		t.Fatalf("sparse: %v", err)
	}
	dg, sg := dres.Groups[0], sres.Groups[0]
	for i := range dg.Genes {
		if dg.Genes[i].Name != sg.Genes[i].Name {
			t.Errorf("rank %d: dense %s != sparse %s", i, dg.Genes[i].Name, sg.Genes[i].Name)
		}
	}
}

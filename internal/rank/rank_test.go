package rank

import (
	"errors"
	"math"
	"testing"

	"github.com/generank/server/internal/matrix"
)

// Two cleanly separated groups: group A expresses gene g0, group B
// expresses gene g2, and g1 is silent everywhere.
var (
	testGenes  = []string{"g0", "g1", "g2"}
	testValues = []float64{
		5, 0, 1,
		6, 0, 1,
		4, 0, 1,
		1, 0, 9,
		2, 0, 8,
		0, 0, 10,
	}
	testLabels = NewLabels([]string{"A", "A", "A", "B", "B", "B"})
)

func testDense() *matrix.Dense {
	return matrix.NewDense(6, 3, append([]float64(nil), testValues...))
}

func testCSR() *matrix.CSR {
	indptr := make([]int, 7)
	var indices []int
	var data []float64
	for i := 0; i < 6; i++ {
		for j := 0; j < 3; j++ {
			if v := testValues[i*3+j]; v != 0 {
				indices = append(indices, j)
				data = append(data, v)
			}
		}
		indptr[i+1] = len(indices)
	}
	return matrix.NewCSR(6, 3, indptr, indices, data)
}

func TestTTestBasic(t *testing.T) {
	res, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{
		Groupby: "cluster",
		Method:  MethodTTest,
		NGenes:  2,
	})
	if err != nil {
		t.Fatalf("RankGenesGroups: %v", err)
	}

	if len(res.Groups) != 2 {
		t.Fatalf("got %d group columns, want 2", len(res.Groups))
	}
	for _, g := range res.Groups {
		if len(g.Genes) != 2 {
			t.Errorf("group %s: got %d genes, want 2", g.Group, len(g.Genes))
		}
	}

	a := res.Group("A")
	if a == nil {
		t.Fatal("missing group A")
	}
	if a.Genes[0].Name != "g0" {
		t.Errorf("group A top gene = %s, want g0", a.Genes[0].Name)
	}
	if a.Genes[0].Pval > 0.05 {
		t.Errorf("group A top p-value = %v, want near 0", a.Genes[0].Pval)
	}

	b := res.Group("B")
	if b == nil {
		t.Fatal("missing group B")
	}
	if b.Genes[0].Name != "g2" {
		t.Errorf("group B top gene = %s, want g2", b.Genes[0].Name)
	}
	if b.Genes[0].Pval > 0.05 {
		t.Errorf("group B top p-value = %v, want near 0", b.Genes[0].Pval)
	}

	if !res.HasStats {
		t.Error("t-test result should carry stats")
	}
	if res.Params.Reference != RefRest || res.Params.Method != MethodTTest {
		t.Errorf("unexpected params: %+v", res.Params)
	}
}

func TestScoresSortedDescending(t *testing.T) {
	for _, method := range []Method{MethodTTest, MethodTTestOverestimVar, MethodWilcoxon} {
		res, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{Method: method, NGenes: 3})
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		for _, g := range res.Groups {
			for i := 1; i < len(g.Genes); i++ {
				if g.Genes[i].Score > g.Genes[i-1].Score {
					t.Errorf("%s group %s: scores not descending at %d: %v > %v",
						method, g.Group, i, g.Genes[i].Score, g.Genes[i-1].Score)
				}
			}
		}
	}
}

func TestPvalsInRange(t *testing.T) {
	for _, method := range []Method{MethodTTest, MethodTTestOverestimVar, MethodWilcoxon} {
		res, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{Method: method, NGenes: 3})
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		for _, g := range res.Groups {
			for _, rec := range g.Genes {
				if rec.Pval < 0 || rec.Pval > 1 || math.IsNaN(rec.Pval) {
					t.Errorf("%s group %s gene %s: p-value %v outside [0,1]", method, g.Group, rec.Name, rec.Pval)
				}
			}
		}
	}
}

func TestNGenesClamped(t *testing.T) {
	res, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{Method: MethodTTest, NGenes: 50})
	if err != nil {
		t.Fatalf("RankGenesGroups: %v", err)
	}
	for _, g := range res.Groups {
		if len(g.Genes) != 3 {
			t.Errorf("group %s: got %d genes, want all 3", g.Group, len(g.Genes))
		}
	}
}

func TestSparseDenseEquivalence(t *testing.T) {
	for _, method := range []Method{MethodTTest, MethodTTestOverestimVar, MethodWilcoxon} {
		cfg := Config{Method: method, NGenes: 3}
		dres, err := RankGenesGroups(testDense(), testGenes, testLabels, cfg)
		if err != nil {
			t.Fatalf("%s dense: %v", method, err)
		}
		sres, err := RankGenesGroups(testCSR(), testGenes, testLabels, cfg)
		if err != nil {
			t.Fatalf("%s sparse: %v", method, err)
		}
		for gi := range dres.Groups {
			dg, sg := dres.Groups[gi], sres.Groups[gi]
			for i := range dg.Genes {
				if dg.Genes[i].Name != sg.Genes[i].Name {
					t.Errorf("%s group %s rank %d: dense %s != sparse %s",
						method, dg.Group, i, dg.Genes[i].Name, sg.Genes[i].Name)
				}
				if math.Abs(dg.Genes[i].Score-sg.Genes[i].Score) > 1e-9 {
					t.Errorf("%s group %s rank %d: score %v != %v",
						method, dg.Group, i, dg.Genes[i].Score, sg.Genes[i].Score)
				}
				if math.Abs(dg.Genes[i].Pval-sg.Genes[i].Pval) > 1e-9 {
					t.Errorf("%s group %s rank %d: pval %v != %v",
						method, dg.Group, i, dg.Genes[i].Pval, sg.Genes[i].Pval)
				}
			}
		}
	}
}

func TestOverestimVarShrinksScores(t *testing.T) {
	// Imbalanced groups: 2 observations in A, 6 in B.
	values := []float64{
		9, 1,
		8, 2,
		1, 5,
		2, 6,
		1, 7,
		2, 5,
		1, 6,
		2, 7,
	}
	labels := NewLabels([]string{"A", "A", "B", "B", "B", "B", "B", "B"})
	m := matrix.NewDense(8, 2, values)
	genes := []string{"g0", "g1"}

	plain, err := RankGenesGroups(m, genes, labels, Config{Method: MethodTTest, NGenes: 2})
	if err != nil {
		t.Fatalf("t-test: %v", err)
	}
	over, err := RankGenesGroups(m, genes, labels, Config{Method: MethodTTestOverestimVar, NGenes: 2})
	if err != nil {
		t.Fatalf("t-test_overestim_var: %v", err)
	}

	a := plain.Group("A")
	ao := over.Group("A")
	for _, rec := range a.Genes {
		for _, oreq := range ao.Genes {
			if rec.Name != oreq.Name {
				continue
			}
			if math.Abs(oreq.Score) > math.Abs(rec.Score)+1e-12 {
				t.Errorf("gene %s: overestimated-variance |score| %v exceeds plain |score| %v",
					rec.Name, math.Abs(oreq.Score), math.Abs(rec.Score))
			}
		}
	}
}

func TestTTestEmptyComparisonSet(t *testing.T) {
	// A single category makes the "rest" complement empty, so the
	// standard-error denominator is 0/0 per gene. Scores must come back
	// zero, never NaN.
	values := []float64{
		5, 1,
		6, 2,
		4, 3,
	}
	labels := NewLabels([]string{"A", "A", "A"})
	m := matrix.NewDense(3, 2, values)
	genes := []string{"g0", "g1"}

	for _, method := range []Method{MethodTTest, MethodTTestOverestimVar} {
		res, err := RankGenesGroups(m, genes, labels, Config{Method: method, NGenes: 2})
		if err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		a := res.Group("A")
		if a == nil {
			t.Fatalf("%s: missing group A", method)
		}
		for _, rec := range a.Genes {
			if math.IsNaN(rec.Score) || math.IsInf(rec.Score, 0) {
				t.Errorf("%s: gene %s score = %v, want finite", method, rec.Name, rec.Score)
			}
			if rec.Score != 0 {
				t.Errorf("%s: gene %s score = %v, want 0", method, rec.Name, rec.Score)
			}
			if rec.Pval != 1 {
				t.Errorf("%s: gene %s pval = %v, want 1", method, rec.Name, rec.Pval)
			}
		}
	}
}

func TestRankByAbsKeepsSign(t *testing.T) {
	res, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{
		Method:    MethodTTest,
		NGenes:    3,
		RankByAbs: true,
	})
	if err != nil {
		t.Fatalf("RankGenesGroups: %v", err)
	}

	a := res.Group("A")
	// Under absolute ranking, the strongly negative g2 outranks the zero
	// score of the silent g1.
	if a.Genes[0].Name != "g2" {
		t.Errorf("group A top by |score| = %s, want g2", a.Genes[0].Name)
	}
	if a.Genes[0].Score >= 0 {
		t.Errorf("group A g2 score = %v, want the signed (negative) value", a.Genes[0].Score)
	}
	for i := 1; i < len(a.Genes); i++ {
		if math.Abs(a.Genes[i].Score) > math.Abs(a.Genes[i-1].Score) {
			t.Errorf("|score| not descending at %d", i)
		}
	}
}

func TestConcreteReference(t *testing.T) {
	labels := NewLabels([]string{"A", "A", "B", "B", "C", "C"})
	values := []float64{
		5, 1,
		6, 1,
		1, 5,
		2, 6,
		3, 3,
		3, 3,
	}
	m := matrix.NewDense(6, 2, values)
	genes := []string{"g0", "g1"}

	res, err := RankGenesGroups(m, genes, labels, Config{
		Method:    MethodTTest,
		Groups:    []string{"A", "B"},
		Reference: "C",
		NGenes:    2,
	})
	if err != nil {
		t.Fatalf("RankGenesGroups: %v", err)
	}

	ids := res.GroupIDs()
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "B" {
		t.Errorf("output groups = %v, want [A B] (reference excluded)", ids)
	}
	if res.Group("C") != nil {
		t.Error("reference group C should not appear in the output")
	}
	if res.Params.Reference != "C" {
		t.Errorf("params reference = %q, want C", res.Params.Reference)
	}
}

func TestInvalidReference(t *testing.T) {
	_, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{
		Method:    MethodTTest,
		Reference: "missing",
	})
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("err = %v, want ErrInvalidReference", err)
	}
}

func TestUnsupportedMethod(t *testing.T) {
	_, err := RankGenesGroups(testDense(), testGenes, testLabels, Config{Method: "anova"})
	if !errors.Is(err, ErrUnsupportedMethod) {
		t.Fatalf("err = %v, want ErrUnsupportedMethod", err)
	}
}

func TestGeneNameMismatch(t *testing.T) {
	_, err := RankGenesGroups(testDense(), []string{"g0"}, testLabels, Config{Method: MethodTTest})
	if err == nil {
		t.Fatal("expected an error for mismatched gene names")
	}
}

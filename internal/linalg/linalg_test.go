package linalg

import "testing"

func TestMulTrans(t *testing.T) {
	a := New(2, 3, []float64{1, 2, 3, 4, 5, 6})
	b := a.Trans()
	if b.Rows() != 3 || b.Cols() != 2 {
		t.Fatalf("unexpected shape %dx%d", b.Rows(), b.Cols())
	}
	c := a.Mul(b)
	if c.Rows() != 2 || c.Cols() != 2 {
		t.Fatalf("unexpected product shape %dx%d", c.Rows(), c.Cols())
	}
	want := [2][2]float64{{14, 32}, {32, 77}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if got := c.At(i, j); got != want[i][j] {
				t.Errorf("c[%d][%d] = %v, want %v", i, j, got, want[i][j])
			}
		}
	}
}

func TestDetInv2x2(t *testing.T) {
	m := New(2, 2, []float64{4, 7, 2, 6})
	det, err := m.Det()
	if err != nil {
		t.Fatalf("Det: %v", err)
	}
	if det != 10 {
		t.Fatalf("det = %v, want 10", det)
	}
	inv, err := m.Inv()
	if err != nil {
		t.Fatalf("Inv: %v", err)
	}
	prod := m.Mul(inv)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if diff := prod.At(i, j) - want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("m*inv[%d][%d] = %v, want %v", i, j, prod.At(i, j), want)
			}
		}
	}
}

func TestInvSingularReturnsNumericError(t *testing.T) {
	m := New(2, 2, []float64{1, 2, 2, 4})
	_, err := m.Inv()
	if err == nil {
		t.Fatal("expected NumericError for singular matrix")
	}
	if _, ok := err.(*NumericError); !ok {
		t.Fatalf("expected *NumericError, got %T", err)
	}
}

func TestInv4x4Identity(t *testing.T) {
	id := Identity(4)
	inv, err := id.Inv()
	if err != nil {
		t.Fatalf("Inv: %v", err)
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if diff := inv.At(i, j) - want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("inv[%d][%d] = %v, want %v", i, j, inv.At(i, j), want)
			}
		}
	}
}

func TestSymmetricPositiveDefinite(t *testing.T) {
	m := Diag([]float64{1, 2, 3, 4})
	if !m.IsSymmetric(1e-12) {
		t.Error("diagonal matrix should be symmetric")
	}
	if !m.IsPositiveDefinite() {
		t.Error("diagonal matrix with positive entries should be PD")
	}
}

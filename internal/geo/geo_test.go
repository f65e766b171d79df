package geo

import (
	"math"
	"testing"
)

func TestDistanceKmZeroForSamePoint(t *testing.T) {
	d := DistanceKm(51.5074, -0.1278, 51.5074, -0.1278)
	if d != 0 {
		t.Fatalf("distance for identical points = %f, want 0", d)
	}
}

func TestDistanceKmSymmetric(t *testing.T) {
	a := DistanceKm(-1.2921, 36.8219, -1.3032, 36.7073) // Найроби CBD -> Karen
	b := DistanceKm(-1.3032, 36.7073, -1.2921, 36.8219)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", a, b)
	}
}

func TestDistanceKmKnownValue(t *testing.T) {
	// Париж -> Лондон, около 344 км
	d := DistanceKm(48.8566, 2.3522, 51.5074, -0.1278)
	if d < 330 || d > 360 {
		t.Fatalf("Paris-London distance = %f km, want ~344", d)
	}
}

func TestDistanceKmShortRange(t *testing.T) {
	// ~111 м на 0.001 градуса широты
	d := DistanceKm(0, 0, 0.001, 0)
	if d < 0.10 || d > 0.12 {
		t.Fatalf("short range distance = %f km, want ~0.111", d)
	}
}

func TestDistanceKmTriangleInequality(t *testing.T) {
	points := [][2]float64{
		{-1.2921, 36.8219},
		{-1.3032, 36.7073},
		{-1.2500, 36.8000},
	}

	ab := DistanceKm(points[0][0], points[0][1], points[1][0], points[1][1])
	bc := DistanceKm(points[1][0], points[1][1], points[2][0], points[2][1])
	ac := DistanceKm(points[0][0], points[0][1], points[2][0], points[2][1])

	if ac > ab+bc+1e-9 {
		t.Fatalf("triangle inequality violated: %f > %f + %f", ac, ab, bc)
	}
}

func TestWithinProximity(t *testing.T) {
	tests := []struct {
		name      string
		distance  float64
		threshold float64
		want      bool
	}{
		{"well inside", 0.05, 0.1, true},
		{"exactly on threshold", 0.1, 0.1, true},
		{"just outside", 0.10001, 0.1, false},
		{"far outside", 5.0, 0.3, false},
		{"zero distance", 0, 0.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WithinProximity(tt.distance, tt.threshold); got != tt.want {
				t.Fatalf("WithinProximity(%f, %f) = %v, want %v", tt.distance, tt.threshold, got, tt.want)
			}
		})
	}
}

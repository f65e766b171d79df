package geo

import "math"

// earthRadiusKm — средний радиус Земли
const earthRadiusKm = 6371.0

// DistanceKm вычисляет расстояние по большому кругу между двумя точками
// по формуле гаверсинуса. Результат в километрах.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// WithinProximity проверяет, находится ли расстояние в пределах радиуса
func WithinProximity(distanceKm, thresholdKm float64) bool {
	return distanceKm <= thresholdKm
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

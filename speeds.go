package harmonica

import "sort"

// noaaSpeeds holds NOAA constituent speeds in degrees per hour.
// The speed is 360 degrees divided by the constituent period in hours.
// Source: https://tidesandcurrents.noaa.gov
var noaaSpeeds = map[string]float64{
	"OO1":  16.139101,
	"2Q1":  12.854286,
	"2MK3": 42.92714,
	"2N2":  27.895355,
	"2SM2": 31.015896,
	"K1":   15.041069,
	"K2":   30.082138,
	"J1":   15.5854435,
	"L2":   29.528479,
	"LAM2": 29.455626,
	"M1":   14.496694,
	"M2":   28.984104,
	"M3":   43.47616,
	"M4":   57.96821,
	"M6":   86.95232,
	"M8":   115.93642,
	"MF":   1.0980331,
	"MK3":  44.025173,
	"MM":   0.5443747,
	"MN4":  57.423832,
	"MS4":  58.984104,
	"MSF":  1.0158958,
	"MU2":  27.968208,
	"N2":   28.43973,
	"NU2":  28.512583,
	"O1":   13.943035,
	"P1":   14.958931,
	"Q1":   13.398661,
	"R2":   30.041067,
	"RHO":  13.471515,
	"S1":   15.0,
	"S2":   30.0,
	"S4":   60.0,
	"S6":   90.0,
	"SA":   0.0410686,
	"SSA":  0.0821373,
	"T2":   29.958933,
}

// Speed returns the angular speed of a constituent in degrees per hour.
func Speed(name string) (float64, bool) {
	s, ok := noaaSpeeds[name]
	return s, ok
}

// SpeedTable returns a copy of the constituent speed table.
func SpeedTable() map[string]float64 {
	out := make(map[string]float64, len(noaaSpeeds))
	for k, v := range noaaSpeeds {
		out[k] = v
	}
	return out
}

// knownConstituents returns the names in the speed table, sorted.
func knownConstituents() []string {
	names := make([]string, 0, len(noaaSpeeds))
	for n := range noaaSpeeds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

package consts

import "math"

const (
	CHARGE    = 1.6021918e-19 // Elementary charge (C)
	BOLTZMANN = 1.3806226e-23 // Boltzmann constant (J/K)
	KELVIN    = 273.15        // Kelvin temperature (K)

	REFTEMP = KELVIN + 27.0          // Reference temperature (K)
	KOVERQ  = BOLTZMANN / CHARGE     // Thermal voltage per kelvin (V/K)
	ROOT2   = math.Sqrt2             // sqrt(2)
	EPSOX   = 3.9 * 8.854214871e-12  // Oxide permittivity (F/m)
	EPSSIL  = 11.7 * 8.854214871e-12 // Silicon permittivity (F/m)
	NI      = 1.45e16                // Intrinsic carrier density (1/m^3)
	EGFET0  = 1.1150877              // Silicon bandgap at REFTEMP (eV)
	MAXEXP  = 709.0                  // Largest safe argument of math.Exp
)

// Package constants defines application-wide constants and version information.
package constants

import "runtime"

// Version holds the application version information
const Version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

// Physical constants used by the electrical model
const (
	// Boltzmann constant, J/K
	Boltzmann = 1.380649e-23

	// ElectronCharge is the elementary charge, C
	ElectronCharge = 1.602176634e-19

	// StandardInsolation is the standard test condition irradiance, W/m²
	StandardInsolation = 1000.0

	// StandardTemperature is the standard test condition cell temperature, °C
	StandardTemperature = 25.0

	// CelsiusToKelvin converts a Celsius temperature to Kelvin
	CelsiusToKelvin = 273.15
)

// Package hardware drives the crib board's peripherals and exposes them as
// the agent's attribute drivers.
//
// The Board owns every peripheral handle and publishes a fixed driver table
// (see Board.Drivers) keyed by attribute name:
//
//	lights       PWM light channel, percent scale (on, off, boost, set, adjust, blink)
//	red_led      GPIO output, 1/0
//	ir_led       GPIO output, 1/0
//	motor        on/off with an optional speed argument
//	microphone   switch, 1/0
//	video        switch, 1/0
//	speakers     switch, 1/0
//	temperature  read-only, TMP102 over i2c-dev
//	cpu          read-only, SoC thermal zone
//
// Physical backends are go-gpiocdev lines for LEDs and buttons, the sysfs
// PWM interface for the light channel and /dev/i2c-N for the temperature
// sensor. With hardware.simulate set, Open wires in-memory fakes instead.
package hardware

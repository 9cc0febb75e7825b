//go:build windows

package launcher

import (
	"errors"
	"os/exec"
	"strings"
)

// platformStrategies adds the shell AppsFolder route for packaged apps
// addressed by their AUMID, e.g. Microsoft.WindowsCalculator_8wekyb3d8bbwe!App.
func platformStrategies(l *Launcher) []strategy {
	return []strategy{{name: "appsfolder", start: startAppsFolder}}
}

// startAppsFolder hands the AUMID to explorer, so the app's own pid is unknown.
func startAppsFolder(target string, _ []string) (uint32, error) {
	if !strings.Contains(target, "!") {
		return 0, errors.New("not an application user model id")
	}
	cmd := exec.Command("explorer.exe", `shell:AppsFolder\`+target)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	go cmd.Wait()
	return 0, nil
}
